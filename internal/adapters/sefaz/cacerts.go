package sefaz

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadRootCAs builds the trust pool for the authorizer endpoints. With an
// empty path it returns nil, which leaves the system pool in charge. A file
// path loads that single PEM bundle; a directory loads every .pem and .crt
// file in it. Hosts whose system store misses the ICP-Brasil chain point this
// at the downloaded intermediates.
func LoadRootCAs(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("extra ca path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("reading ca directory: %w", err)
		}
		files = files[:0]
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".pem", ".crt":
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	}

	added := 0
	for _, file := range files {
		pem, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading ca file %s: %w", file, err)
		}
		if pool.AppendCertsFromPEM(pem) {
			added++
		}
	}
	if added == 0 {
		return nil, fmt.Errorf("no usable certificates under %s", path)
	}
	return pool, nil
}
