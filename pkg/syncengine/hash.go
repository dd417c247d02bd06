package syncengine

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	"github.com/pixelgardenlabs/docsync/pkg/pool"
)

// hashBuffers reuses fixed-size copy buffers across hashFile calls so a
// tick that hashes many files does not allocate one buffer per file.
var hashBuffers = pool.NewFixedBuffer(32 * 1024)

// hashFile returns the hex-encoded MD5 digest of path's content. Hashing
// always runs on the original, pre-preprocessed content so identity is
// stable against preprocessor changes.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := hashBuffers.Get()
	defer hashBuffers.Put(buf)

	h := md5.New()
	if _, err := io.CopyBuffer(h, f, *buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
