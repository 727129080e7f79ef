package utils_test

import (
	"testing"

	"github.com/evoronina/konspekt/pkgs/utils"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tcs := []struct {
		Name string
		In   string
		Want string
	}{
		{"plain", "Linear Algebra", "Linear Algebra"},
		{"path separators", "intro/to\\go", "intro_to_go"},
		{"collapsed whitespace", "  a \t lecture\n title ", "a lecture title"},
		{"hostile characters", `lec: "part*2"?`, "lec_ _part_2"},
		{"cyrillic kept", "Лекция по матанализу", "Лекция по матанализу"},
		{"empty becomes placeholder", "   ", "untitled"},
		{"dots trimmed", "..hidden..", "hidden"},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Want, utils.SanitizeFilename(tc.In))
		})
	}
}

func TestMask(t *testing.T) {
	require.Equal(t, "●●●●●", utils.Mask("12345"))
	masked := utils.Mask("a-very-long-password-value")
	require.Contains(t, masked, "●")
	require.NotContains(t, masked, "long-password")
}

func TestDefaultIfZero(t *testing.T) {
	require.Equal(t, "dev", utils.DefaultIfZero("", "dev"))
	require.Equal(t, "prod", utils.DefaultIfZero("prod", "dev"))
	require.Equal(t, 8080, utils.DefaultIfZero(0, 8080))
}
