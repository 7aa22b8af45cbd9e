package packaging

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stratoform/controlplane/schema"
)

// DiffModuleSource buckets top-level HCL blocks that changed between the
// previous version's concatenated .tf source and the new version's, keyed by
// block identity ({type, labels...}) — the Go equivalent of
// original_source's diff_modules.
func DiffModuleSource(previous, current string) (schema.VersionDiff, error) {
	prevBlocks, err := topLevelBlocks(previous)
	if err != nil {
		return schema.VersionDiff{}, err
	}
	curBlocks, err := topLevelBlocks(current)
	if err != nil {
		return schema.VersionDiff{}, err
	}

	var diff schema.VersionDiff
	for id, curSrc := range curBlocks {
		prevSrc, existed := prevBlocks[id]
		switch {
		case !existed:
			diff.Added = append(diff.Added, blockDiff(id, "", curSrc))
		case prevSrc != curSrc:
			diff.Changed = append(diff.Changed, blockDiff(id, prevSrc, curSrc))
		}
	}
	for id, prevSrc := range prevBlocks {
		if _, stillPresent := curBlocks[id]; !stillPresent {
			diff.Removed = append(diff.Removed, blockDiff(id, prevSrc, ""))
		}
	}
	return diff, nil
}

type blockIdentity struct {
	blockType string
	labels    []string
}

func topLevelBlocks(source string) (map[string]string, error) {
	file, diags := hclsyntax.ParseConfig([]byte(source), "module.tf", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	body := file.Body.(*hclsyntax.Body)

	blocks := make(map[string]string)
	for _, b := range body.Blocks {
		id := blockIdentity{blockType: b.Type, labels: b.Labels}
		blocks[id.key()] = string(b.Range().SliceBytes([]byte(source)))
	}
	return blocks, nil
}

func (id blockIdentity) key() string {
	return id.blockType + "/" + strings.Join(id.labels, "/")
}

func blockDiff(id, before, after string) schema.HCLBlockDiff {
	parts := strings.Split(id, "/")
	return schema.HCLBlockDiff{
		BlockType: parts[0],
		Labels:    parts[1:],
		Before:    before,
		After:     after,
	}
}
