// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package cmdline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Args never carries the executable itself: the dispatch driver resolves
// and runs the tool's executable separately and passes Classify only the
// arguments following it (internal/dispatch.Driver.Run), so the vectors
// below start at the first switch rather than "cl.exe".

func TestMSVCClassifyCompile(t *testing.T) {
	c := NewToolCommandline(ToolID{ToolID: "msvc"}, []string{"/c", "/EHsc", "foo.cpp", "/Fofoo.obj"})
	require.NoError(t, (MSVC{}).Classify(&c))
	assert.Equal(t, Compile, c.Type)
	assert.Equal(t, "foo.cpp", c.InputName())
	assert.Equal(t, "/Fofoo.obj", c.OutputName())
}

func TestMSVCClassifyTwoInputsUnknown(t *testing.T) {
	c := NewToolCommandline(ToolID{}, []string{"/c", "foo.cpp", "bar.cpp", "/Fofoo.obj"})
	err := (MSVC{}).Classify(&c)
	assert.ErrorIs(t, err, ErrUnclassifiable)
}

func TestMSVCSplitReconstitution(t *testing.T) {
	cc := NewToolCommandline(ToolID{ToolID: "msvc"}, []string{
		"/c", "/I.", "/DFOO=1", "foo.cpp", "/Fofoo.obj",
	})
	pp, remote, err := Split(MSVC{}, cc, "C:\\scratch\\foo.i")
	require.NoError(t, err)

	assert.Equal(t, Preprocess, pp.Type)
	assert.Contains(t, pp.Args, "/P")
	assert.Contains(t, pp.Args, "/FiC:\\scratch\\foo.i")
	assert.NotContains(t, pp.Args, "/c")

	assert.Equal(t, Compile, remote.Type)
	assert.Equal(t, "C:\\scratch\\foo.i", remote.InputName())
	assert.NotContains(t, remote.Args, "/I.")
	assert.NotContains(t, remote.Args, "/DFOO=1")
	assert.Contains(t, remote.Args, "/Fofoo.obj")
}
