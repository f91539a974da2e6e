// SPDX-License-Identifier: MPL-2.0

// Package cueutil decodes the CUE documents grab reads: the user config
// file, repository lists and the grab.cue manifests artifacts ship.
//
// Every document is checked against an embedded schema definition before it
// is decoded:
//
//	//go:embed schema/manifest_schema.cue
//	var manifestSchema []byte
//
//	result, err := cueutil.ParseAndDecode[Manifest](
//	    manifestSchema,
//	    data,
//	    "#Manifest",
//	    cueutil.WithFilename(path),
//	)
//
// Errors carry the file name and the JSON-style path of the offending field,
// for example "grab.cue: dependencies[1].module: conflicting values".
package cueutil
