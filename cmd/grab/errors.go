// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/invowk/grab/internal/engine"
	"github.com/invowk/grab/internal/issue"
	"github.com/invowk/grab/pkg/argparse"
	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/directive"
	"github.com/invowk/grab/pkg/isolation"
	"github.com/invowk/grab/pkg/script"
)

// classifyError maps a failure to the issue guide that explains it, or 0.
// An issue attached to an ActionableError wins over the error chain.
func classifyError(err error) issue.Id {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}

	switch {
	case errors.Is(err, directive.ErrInvalidDirective), errors.Is(err, argparse.ErrSyntax):
		return issue.InvalidDirectiveId
	case errors.Is(err, depspec.ErrConflictingKeys):
		return issue.ConflictingKeysId
	case errors.Is(err, isolation.ErrNoSuitableContext):
		return issue.NoSuitableContextId
	case errors.Is(err, engine.ErrArtifactNotFound):
		return issue.ArtifactNotFoundId
	case errors.Is(err, engine.ErrNoMatchingVersion):
		return issue.NoMatchingVersionId
	case errors.Is(err, engine.ErrOffline):
		return issue.OfflineId
	case errors.Is(err, engine.ErrChecksumMismatch):
		return issue.ChecksumMismatchId
	case errors.Is(err, engine.ErrDependencyCycle):
		return issue.DependencyCycleId
	case errors.Is(err, script.ErrUnknownLanguage):
		return issue.UnknownScriptLanguageId
	case errors.Is(err, script.ErrScriptFailed):
		return issue.ScriptExecutionFailedId
	}
	return 0
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderError writes the styled error and, when one applies, its Markdown
// guide. A guide that fails to render is skipped.
func renderError(w io.Writer, err error, verbose bool, stylePath string) {
	fmt.Fprintf(w, "\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))

	guide := issue.Get(classifyError(err))
	if guide == nil {
		return
	}
	out, rerr := guide.Render(stylePath)
	if rerr != nil {
		return
	}
	fmt.Fprint(w, out)
}

// fail renders err on the app's stderr and converts it to an ExitError so
// fang does not print it a second time. Script exit codes pass through.
func (a *App) fail(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	// a failing script already printed its own diagnostics
	var exitErr *script.ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return &ExitError{Code: exitErr.Code}
	}
	renderError(a.stderr, err, a.verbose(), a.glamourStyle())
	return &ExitError{Code: 1}
}
