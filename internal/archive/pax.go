package archive

import (
	"archive/tar"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const (
	// GNU tar and star store the raw value under the attribute name.
	schilyXattrPrefix = "SCHILY.xattr."
	// bsdtar escapes the name and base64-encodes the value.
	libarchiveXattrPrefix = "LIBARCHIVE.xattr."
)

// decodeXattrs collects extended attributes from the PAX records of hdr.
// It returns nil when there are none.
func decodeXattrs(hdr *tar.Header) (map[string][]byte, error) {
	var out map[string][]byte
	set := func(name string, v []byte) {
		if out == nil {
			out = make(map[string][]byte)
		}
		out[name] = v
	}
	for k, v := range hdr.PAXRecords {
		switch {
		case strings.HasPrefix(k, schilyXattrPrefix):
			set(strings.TrimPrefix(k, schilyXattrPrefix), []byte(v))
		case strings.HasPrefix(k, libarchiveXattrPrefix):
			name, err := url.QueryUnescape(strings.TrimPrefix(k, libarchiveXattrPrefix))
			if err != nil {
				return nil, fmt.Errorf("decode xattr name: %w", err)
			}
			b, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("decode xattr %q: %w", name, err)
			}
			set(name, b)
		}
	}
	return out, nil
}
