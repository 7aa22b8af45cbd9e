package plangraph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// modulesManifest mirrors the subset of Terraform's
// .terraform/modules/modules.json this package needs: each entry maps a
// module call's dotted key to the on-disk directory it was installed into.
type modulesManifest struct {
	Modules []moduleManifestEntry `json:"Modules"`
}

type moduleManifestEntry struct {
	Key string `json:"Key"`
	Dir string `json:"Dir"`
}

// findHCLBlock locates and extracts the exact source text of the HCL block
// that defines address, or "" if rootDir has no modules manifest, the
// address has no corresponding .tf block, or the underlying files can't be
// parsed. fileCache amortizes repeated reads of the same .tf file across
// many addresses from the same directory.
func findHCLBlock(rootDir, address string, fileCache map[string]string) string {
	dir, ok := moduleDirFor(rootDir, address)
	if !ok {
		return ""
	}

	parts, ok := localAddressParts(address)
	if !ok {
		return ""
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tf") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		content, cached := fileCache[path]
		if !cached {
			raw, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			content = string(raw)
			fileCache[path] = content
		}

		if block := extractBlock(content, path, parts.blockType, parts.typeLabel, parts.nameLabel); block != "" {
			return block
		}
	}
	return ""
}

// moduleDirFor resolves address's module path ("module.a.module.b.…") to a
// directory on disk via the modules manifest, or rootDir itself for a
// root-module address.
func moduleDirFor(rootDir, address string) (string, bool) {
	key := moduleKeyOf(address)
	if key == "" {
		return rootDir, true
	}

	manifestPath := filepath.Join(rootDir, ".terraform", "modules", "modules.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", false
	}

	var manifest modulesManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return "", false
	}

	for _, m := range manifest.Modules {
		if m.Key == key {
			if filepath.IsAbs(m.Dir) {
				return m.Dir, true
			}
			return filepath.Join(rootDir, m.Dir), true
		}
	}
	return "", false
}

// moduleKeyOf extracts the "a.b" module key from a "module.a.module.b.…"
// address, or "" for a root-module address.
func moduleKeyOf(address string) string {
	parts := strings.Split(address, ".")
	var keyParts []string
	i := 0
	for i+1 < len(parts) && parts[i] == "module" {
		keyParts = append(keyParts, parts[i+1])
		i += 2
	}
	return strings.Join(keyParts, ".")
}

type localAddress struct {
	blockType string
	typeLabel string
	nameLabel string
}

// localAddressParts strips an address's module prefix and returns the
// resource/data block's own labels, or ok=false for a var/local/output
// address (nothing a .tf "resource"/"data" block defines).
func localAddressParts(address string) (localAddress, bool) {
	parts := strings.Split(address, ".")
	i := 0
	for i+1 < len(parts) && parts[i] == "module" {
		i += 2
	}
	local := parts[i:]

	switch {
	case len(local) >= 3 && local[0] == "data":
		return localAddress{blockType: "data", typeLabel: local[1], nameLabel: stripIndex(local[2])}, true
	case len(local) >= 2:
		return localAddress{blockType: "resource", typeLabel: local[0], nameLabel: stripIndex(local[1])}, true
	default:
		return localAddress{}, false
	}
}

func stripIndex(s string) string {
	if idx := strings.IndexByte(s, '['); idx >= 0 {
		return s[:idx]
	}
	return s
}

// extractBlock parses filename's content and returns the exact source text
// of the top-level block matching blockType/typeLabel/nameLabel, reusing the
// same hclsyntax traversal packaging's module-source diff uses rather than a
// hand-rolled brace scan.
func extractBlock(content, filename, blockType, typeLabel, nameLabel string) string {
	file, diags := hclsyntax.ParseConfig([]byte(content), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return ""
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return ""
	}

	for _, b := range body.Blocks {
		if b.Type != blockType || len(b.Labels) != 2 {
			continue
		}
		if b.Labels[0] == typeLabel && b.Labels[1] == nameLabel {
			return string(b.Range().SliceBytes([]byte(content)))
		}
	}
	return ""
}
