// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package cmdline

// Split produces the preprocess (PP) and compile (CC) halves of a Compile
// invocation, per the splitting invariant: PP runs locally and writes
// ppPath, CC ships to a worker with ppPath staged as its input. Split never
// mutates cc; it classifies a clone first so a caller's already-classified
// ToolCommandline is untouched on failure.
//
// Split returns ErrUnclassifiable without producing either half when cc is
// not a classifiable Compile invocation — callers must fall through to
// local execution in that case (spec §4.C's "splitting never silently
// produces wrong halves").
func Split(d Dialect, cc ToolCommandline, ppPath string) (pp ToolCommandline, remote ToolCommandline, err error) {
	working := cc.Clone()
	if err := d.Classify(&working); err != nil {
		return ToolCommandline{}, ToolCommandline{}, err
	}
	if working.Type != Compile {
		return ToolCommandline{}, ToolCommandline{}, ErrUnclassifiable
	}

	pp = working.Clone()
	if err := d.StripPreprocess(&pp, ppPath); err != nil {
		return ToolCommandline{}, ToolCommandline{}, err
	}

	remote = working.Clone()
	if err := d.StripCompile(&remote, ppPath); err != nil {
		return ToolCommandline{}, ToolCommandline{}, err
	}

	if !pp.Valid() || pp.Type != Preprocess {
		return ToolCommandline{}, ToolCommandline{}, ErrUnclassifiable
	}
	if !remote.Valid() || remote.Type != Compile {
		return ToolCommandline{}, ToolCommandline{}, ErrUnclassifiable
	}
	return pp, remote, nil
}
