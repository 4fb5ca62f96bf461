// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package cmdline

import "strings"

// MSVC implements the Dialect for cl.exe-style command lines. Unlike GCC,
// MSVC's path-bearing flags are attached to the flag itself (/Fofoo.obj,
// not /Fo foo.obj), so there is no "consumes next argument" table — only
// prefix matching.
type MSVC struct{}

// Name implements Dialect.
func (MSVC) Name() string { return "msvc" }

// Classify implements Dialect. /c selects Compile, /P selects Preprocess
// (cl.exe's to-file preprocess mode; plain /E writes to stdout and is not
// remoteable since there is no output argument to redirect).
func (MSVC) Classify(c *ToolCommandline) error {
	c.Type = Unknown
	c.InputIndex = -1
	c.OutputIndex = -1

	for i, arg := range c.Args {
		switch {
		case arg == "/c":
			c.Type = Compile
		case arg == "/P":
			c.Type = Preprocess
		case strings.HasPrefix(arg, "/Fo"):
			c.OutputIndex = i
		case strings.HasPrefix(arg, "/Fi"):
			c.OutputIndex = i
		case strings.HasPrefix(arg, "/") || strings.HasPrefix(arg, "-"):
			// other switch, ignored for classification purposes
		default:
			if c.InputIndex != -1 {
				c.Type = Unknown
				c.InputIndex = -1
				c.OutputIndex = -1
				return ErrUnclassifiable
			}
			c.InputIndex = i
		}
	}

	if c.Type == Unknown || c.InputIndex == -1 || c.OutputIndex == -1 || c.OutputIndex >= len(c.Args) {
		c.Type = Unknown
		c.InputIndex = -1
		c.OutputIndex = -1
		return ErrUnclassifiable
	}
	return nil
}

// StripPreprocess implements Dialect: the /c and /Fo flags are replaced
// with /P and /Fi<ppOutputPath> (cl.exe's file-based preprocess mode).
func (MSVC) StripPreprocess(c *ToolCommandline, ppOutputPath string) error {
	if err := (MSVC{}).Classify(c); err != nil {
		return err
	}
	out := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		switch {
		case arg == "/c":
			continue
		case strings.HasPrefix(arg, "/Fo"):
			continue
		default:
			out = append(out, arg)
		}
	}
	out = append(out, "/P", "/Fi"+ppOutputPath)
	c.Args = out
	return (MSVC{}).Classify(c)
}

// StripCompile implements Dialect: /I, /D, and /FI (force-include) flags
// are removed since the preprocessed source already reflects their effect,
// and the input argument is replaced with ppInputPath.
func (MSVC) StripCompile(c *ToolCommandline, ppInputPath string) error {
	out := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		if strings.HasPrefix(arg, "/I") || strings.HasPrefix(arg, "/D") || strings.HasPrefix(arg, "/FI") {
			continue
		}
		out = append(out, arg)
	}
	c.Args = out
	if err := (MSVC{}).Classify(c); err != nil {
		return err
	}
	c.Args[c.InputIndex] = ppInputPath
	return nil
}
