// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package cmdline

// UpdateFile is the trivial dialect for arbitrary file-producing tools
// where the last argument is both the tool's input and its output (e.g. a
// resource compiler invoked in place, or a code generator that rewrites
// its own source argument).
type UpdateFile struct{}

// Name implements Dialect.
func (UpdateFile) Name() string { return "updatefile" }

// Classify implements Dialect: the last argument is always the input and
// the output.
func (UpdateFile) Classify(c *ToolCommandline) error {
	if len(c.Args) == 0 {
		c.Type = Unknown
		c.InputIndex = -1
		c.OutputIndex = -1
		return ErrUnclassifiable
	}
	c.Type = Compile
	c.InputIndex = len(c.Args) - 1
	c.OutputIndex = len(c.Args) - 1
	return nil
}

// StripPreprocess implements Dialect. UpdateFile tools have no separate
// preprocess step; the invocation is simply redirected to ppOutputPath and
// reclassified as Preprocess so the executor stages it like any other
// preprocess task.
func (UpdateFile) StripPreprocess(c *ToolCommandline, ppOutputPath string) error {
	if err := (UpdateFile{}).Classify(c); err != nil {
		return err
	}
	c.Args[c.OutputIndex] = ppOutputPath
	c.Type = Preprocess
	return nil
}

// StripCompile implements Dialect: the shared input/output argument is
// replaced with ppInputPath, the path the preprocessed bytes will be
// staged to on the worker.
func (UpdateFile) StripCompile(c *ToolCommandline, ppInputPath string) error {
	if err := (UpdateFile{}).Classify(c); err != nil {
		return err
	}
	c.Args[c.InputIndex] = ppInputPath
	return nil
}
