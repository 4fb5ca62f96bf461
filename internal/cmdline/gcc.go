// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package cmdline

// flagConsumesNext lists GCC-dialect flags that take their value as the
// following argument rather than attached to the flag itself.
var flagConsumesNext = map[string]bool{
	"-MF": true, "-MT": true, "-isysroot": true, "-target": true,
	"-isystem": true, "-iframework": true, "--serialize-diagnostics": true,
	"-index-store-path": true, "-arch": true,
}

// GCC implements the Dialect for gcc/clang-family command lines.
type GCC struct{}

// Name implements Dialect.
func (GCC) Name() string { return "gcc" }

// Classify implements Dialect, mirroring the single-pass scan used by the
// original GccCommandLineParser: it walks Args once, tracking the most
// recent -c/-E as the invocation type, -o's following argument as the
// output, and the sole non-flag argument as the input. A second positional
// argument makes the invocation unclassifiable rather than guessing which
// one is the real source file.
func (GCC) Classify(c *ToolCommandline) error {
	c.Type = Unknown
	c.InputIndex = -1
	c.OutputIndex = -1

	skipNext := false
	for i, arg := range c.Args {
		if skipNext {
			skipNext = false
			continue
		}
		if len(arg) > 1 && arg[0] == '-' {
			switch arg[1] {
			case 'c':
				c.Type = Compile
			case 'E':
				c.Type = Preprocess
			case 'o':
				c.OutputIndex = i + 1
				skipNext = true
			case 'x':
				skipNext = true
			}
			if flagConsumesNext[arg] {
				skipNext = true
			}
			continue
		}
		if !gccIgnored(arg) {
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

// gccIgnored reports positional tokens that never count as the invocation's
// input, such as an empty argument left by upstream argv splitting.
func gccIgnored(arg string) bool {
	return arg == ""
}

// StripPreprocess implements Dialect.
func (GCC) StripPreprocess(c *ToolCommandline, ppOutputPath string) error {
	if err := (GCC{}).Classify(c); err != nil {
		return err
	}
	typeIdx := -1
	for i, arg := range c.Args {
		if len(arg) > 1 && arg[0] == '-' && (arg[1] == 'c' || arg[1] == 'E') {
			typeIdx = i
		}
	}
	if typeIdx == -1 {
		return ErrUnclassifiable
	}
	c.Args[typeIdx] = "-E"
	c.Args = removeDependencyFlags(c.Args)
	if err := (GCC{}).Classify(c); err != nil {
		return err
	}
	c.Args[c.OutputIndex] = ppOutputPath
	return nil
}

// StripCompile implements Dialect.
func (GCC) StripCompile(c *ToolCommandline, ppInputPath string) error {
	c.Args = removePreprocessorFlags(c.Args)
	if err := (GCC{}).Classify(c); err != nil {
		return err
	}
	c.Args[c.InputIndex] = ppInputPath
	return nil
}

// removeDependencyFlags strips -MMD, -MD, and their value-bearing
// companions -MF/-MT, per the preprocess-half splitting rule.
func removeDependencyFlags(args []string) []string {
	out := make([]string, 0, len(args))
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		if arg == "-MMD" || arg == "-MD" {
			continue
		}
		if arg == "-MF" || arg == "-MT" {
			skipNext = true
			continue
		}
		out = append(out, arg)
	}
	return out
}

// removePreprocessorFlags strips -I*/-D*/-F* and the value-bearing
// preprocessor-only flags, per the compile-half splitting rule. It also
// drops -index-store-path, which is local-only and never shipped remotely.
func removePreprocessorFlags(args []string) []string {
	out := make([]string, 0, len(args))
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		if len(arg) > 1 && arg[0] == '-' {
			switch arg[1] {
			case 'I', 'D', 'F':
				continue
			}
			switch arg {
			case "-isysroot", "-iframework", "-isystem", "--serialize-diagnostics", "-index-store-path":
				skipNext = true
				continue
			}
		}
		out = append(out, arg)
	}
	return out
}
