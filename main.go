// SPDX-License-Identifier: MPL-2.0

// Command grab fetches versioned artifacts and runs scripts that declare them.
package main

import "github.com/invowk/grab/cmd/grab"

func main() {
	cmd.Execute()
}
