package gcp

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("```markdown\n## Drying summary\n"),
				genai.Text("All materials dry.\n```"),
			}},
		}},
	}
	assert.Equal(t, "## Drying summary\nAll materials dry.", ExtractText(resp))
	assert.Equal(t, "", ExtractText(nil))
	assert.Equal(t, "", ExtractText(&genai.GenerateContentResponse{}))
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal("As a large language model I cannot"))
	assert.False(t, IsRefusal("Drywall in the kitchen reached its dry standard on day 3."))
}

func TestTransientStorageError(t *testing.T) {
	assert.True(t, transientStorageError(&googleapi.Error{Code: http.StatusServiceUnavailable}))
	assert.True(t, transientStorageError(&googleapi.Error{Code: http.StatusTooManyRequests}))
	assert.False(t, transientStorageError(&googleapi.Error{Code: http.StatusForbidden}))
	assert.True(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusPreconditionFailed}))
}

func TestPhotoObjectName(t *testing.T) {
	assert.Equal(t, "jobs/job-1/install/containment/abc.jpg", PhotoObjectName("job-1", "install/containment", "abc.jpg"))
	assert.Equal(t, ".jpg", photoExt("image/jpeg"))
	assert.Equal(t, "", photoExt("application/octet-stream"))
}

func TestWriteLocalFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "00000.jpg")

	require.NoError(t, writeLocalFile(strings.NewReader("jpeg bytes"), dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))

	readErr := errors.New("connection reset")
	err = writeLocalFile(iotest.ErrReader(readErr), filepath.Join(dir, "00001.jpg"))
	assert.ErrorIs(t, err, readErr)

	err = writeLocalFile(strings.NewReader("x"), filepath.Join(dir, "missing", "00002.jpg"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
