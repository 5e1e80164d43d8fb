package sanitize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	require.Equal(t, "Tom & Jerry", Text("  Tom & Jerry "))
	require.Equal(t, "hello", Text(`<script>alert(1)</script><b>hello</b>`))
	require.Equal(t, "", Text("<img src=x onerror=alert(1)>"))
}
