// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

type (
	// Id identifies a class of problem the CLI can explain.
	Id int

	// MarkdownMsg is the Markdown body of an issue.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string

	// Issue is a Markdown explanation of a failure with remediation steps.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

const (
	ConfigLoadFailedId Id = iota + 1
	ArtifactNotFoundId
	NoMatchingVersionId
	OfflineId
	ChecksumMismatchId
	DependencyCycleId
	NoSuitableContextId
	InvalidDirectiveId
	ConflictingKeysId
	ScriptExecutionFailedId
	UnknownScriptLanguageId
)

func (i *Issue) Id() Id { return i.id }

func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

func (i *Issue) ExtLinks() []HttpLink { return slices.Clone(i.extLinks) }

// Render renders the issue for a terminal with the glamour style at
// stylePath ("dark", "light", "auto" or a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range slices.Concat(i.docLinks, i.extLinks) {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

grab could not read its configuration file.

## Things you can try:
- Show the effective configuration and where it came from:
~~~
$ grab config show
$ grab config path
~~~

- Recreate a default configuration:
~~~
$ grab config init
~~~

## Example config.cue:
~~~cue
auto_download: true
repositories: [
	{name: "corp", root: "https://git.example.com"},
]
~~~`,
	}

	artifactNotFoundIssue = &Issue{
		id: ArtifactNotFoundId,
		mdMsg: `
# Artifact not found!

None of the configured repositories has the requested group and module.

## Things you can try:
- List the repositories grab consults, in order:
~~~
$ grab repos
~~~

- Add the repository that hosts the artifact for this run:
~~~
$ grab get --repo corp=https://git.example.com org.example:lib
~~~

- Or declare it in the script itself:
~~~
#@repository(name='corp', root='https://git.example.com')
~~~`,
		extLinks: []HttpLink{"https://semver.org"},
	}

	noMatchingVersionIssue = &Issue{
		id: NoMatchingVersionId,
		mdMsg: `
# No matching version!

The artifact exists but no published version satisfies the constraint.

## Supported constraints:
- ` + "`*`" + ` or ` + "`latest.release`" + `: newest release
- ` + "`1.2.3`" + `: exactly that version
- ` + "`^1.2`" + `, ` + "`~1.2.3`" + `: compatible releases
- ` + "`>=1.0`" + `, ` + "`<2.0`" + `: ranges`,
		extLinks: []HttpLink{"https://semver.org"},
	}

	offlineIssue = &Issue{
		id: OfflineId,
		mdMsg: `
# Artifact not cached!

Downloads are disabled and the artifact is not in the local cache.

## Things you can try:
- Allow downloads for this run by dropping ` + "`--no-download`" + `
- Enable them permanently:
~~~cue
auto_download: true
~~~`,
	}

	checksumMismatchIssue = &Issue{
		id: ChecksumMismatchId,
		mdMsg: `
# Checksum mismatch!

The fetched artifact does not match the checksum recorded in grab.lock.toml.
The upstream tag may have been moved, or the cache was modified.

## Things you can try:
- Inspect what changed upstream before trusting the new content
- Re-pin deliberately by passing ` + "`--disable-checksums`" + ` once`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle detected!

Artifacts depend on each other through their grab.cue manifests.

## Things you can try:
- Break the cycle in one of the manifests listed above
- Grab without transitive dependencies:
~~~
#@dependency('org.example:lib:1.0', transitive=false)
~~~`,
	}

	noSuitableContextIssue = &Issue{
		id: NoSuitableContextId,
		mdMsg: `
# No suitable isolation context!

Every context from the requested one up to the root is specialized, so the
artifact has nowhere safe to load.

## Things you can try:
- Pass a plain context explicitly with the ` + "`classLoader`" + ` key
- Run the script from a host that provides a plain root context`,
	}

	invalidDirectiveIssue = &Issue{
		id: InvalidDirectiveId,
		mdMsg: `
# Invalid directive!

A ` + "`#@dependency`" + ` or ` + "`#@repository`" + ` line could not be parsed, so
the script did not run.

## Accepted forms:
~~~
#@dependency('org.example:lib:1.2.0')
#@dependency(group='org.example', module='lib', version='^1.2')
#@repository(name='corp', root='https://git.example.com')
~~~`,
	}

	conflictingKeysIssue = &Issue{
		id: ConflictingKeysId,
		mdMsg: `
# Conflicting keys!

Two keys meaning the same thing were given different values, for example
` + "`group`" + ` and ` + "`groupId`" + `. Keep only one of them.`,
	}

	scriptExecutionFailedIssue = &Issue{
		id: ScriptExecutionFailedId,
		mdMsg: `
# Script execution failed!

The script body ran and exited with an error. Its dependencies were acquired
successfully.

## Things you can try:
- Check the script output above
- Print the artifacts visible to the script with ` + "`echo $GRAB_PATH`",
	}

	unknownScriptLanguageIssue = &Issue{
		id: UnknownScriptLanguageId,
		mdMsg: `
# Unknown script language!

grab runs shell scripts (` + "`.sh`" + `, ` + "`.bash`" + `) and Go programs
(` + "`.go`" + `). Rename the script with one of these extensions.`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():      configLoadFailedIssue,
		artifactNotFoundIssue.Id():      artifactNotFoundIssue,
		noMatchingVersionIssue.Id():     noMatchingVersionIssue,
		offlineIssue.Id():               offlineIssue,
		checksumMismatchIssue.Id():      checksumMismatchIssue,
		dependencyCycleIssue.Id():       dependencyCycleIssue,
		noSuitableContextIssue.Id():     noSuitableContextIssue,
		invalidDirectiveIssue.Id():      invalidDirectiveIssue,
		conflictingKeysIssue.Id():       conflictingKeysIssue,
		scriptExecutionFailedIssue.Id(): scriptExecutionFailedIssue,
		unknownScriptLanguageIssue.Id(): unknownScriptLanguageIssue,
	}
)

// Values returns every issue ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int { return int(a.id) - int(b.id) })
}

// Get returns the issue for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
