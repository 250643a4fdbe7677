package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectStoresCopy(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	data := []byte("<html>x</html>")

	uri, err := s.PutObject(context.Background(), "run-1/page.html", "text/html", data)
	require.NoError(t, err)
	require.Equal(t, "memory://run-1/page.html", uri)

	data[0] = '!'
	stored, ok := s.Object("run-1/page.html")
	require.True(t, ok)
	require.Equal(t, "<html>x</html>", string(stored))
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	_, err := s.PutObject(context.Background(), "", "text/html", []byte("x"))
	require.Error(t, err)
}
