package promotion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/filex"
	"github.com/dmitrijs2005/intake/internal/server/kinds"
	"github.com/dmitrijs2005/intake/internal/server/models"
)

// CanonicalPath is where a promoted file lives:
// <validated>/<tp>/RAW/PSC1/<centre>/<sid>[/<subdir>]/<data name>.
func CanonicalPath(validatedDir string, k *kinds.Kind, u *models.Upload, dataName string) (string, error) {
	parts := []struct{ name, value string }{
		{common.FieldTimePoint, u.Field(common.FieldTimePoint)},
		{common.FieldCentre, u.Field(common.FieldCentre)},
		{common.FieldSubjectID, u.Field(common.FieldSubjectID)},
		{"data name", dataName},
	}
	for _, p := range parts {
		if p.value == "" {
			return "", fmt.Errorf("%w: %s", common.ErrMissingField, p.name)
		}
		if !safeSegment(p.value) {
			return "", fmt.Errorf("%s %q is not usable as a path segment", p.name, p.value)
		}
	}

	elems := []string{validatedDir, parts[0].value, "RAW", "PSC1", parts[1].value, parts[2].value}
	if k.Subdir != "" {
		elems = append(elems, k.Subdir)
	}
	elems = append(elems, dataName)
	return filepath.Join(elems...), nil
}

func safeSegment(s string) bool {
	return s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}

// promoteFile copies f into the archive, verifies the copy against the
// recorded hash, then swaps the original for a symlink. On mismatch the
// copy is removed and the original is left untouched.
func (r *Reconciler) promoteFile(k *kinds.Kind, u *models.Upload, f models.UploadFile) error {
	dst, err := CanonicalPath(r.validatedDir, k, u, f.DataName)
	if err != nil {
		return err
	}

	done, err := alreadyPromoted(f.Path, dst)
	if err != nil {
		return err
	}
	if done {
		// an earlier run stopped after linking this file
		return verify(dst, f.SHA1Hex, false)
	}

	if err := filex.CopyFile(f.Path, dst); err != nil {
		return err
	}
	if err := verify(dst, f.SHA1Hex, true); err != nil {
		return err
	}
	return filex.ReplaceWithSymlink(f.Path, dst)
}

func alreadyPromoted(src, dst string) (bool, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", src, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return false, nil
	}
	target, err := os.Readlink(src)
	if err != nil {
		return false, fmt.Errorf("readlink %s: %w", src, err)
	}
	if target != dst {
		return false, fmt.Errorf("%s already links to %s", src, target)
	}
	return true, nil
}

func verify(path, want string, removeOnMismatch bool) error {
	got, err := filex.SHA1File(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		if removeOnMismatch {
			os.Remove(path)
		}
		return fmt.Errorf("%w: %s has sha1 %s, recorded %s", common.ErrHashMismatch, path, got, want)
	}
	return nil
}
