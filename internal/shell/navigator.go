// Package shell implements the filesystem navigator and the host process
// execution primitive. The navigator owns every operation that reads or
// mutates directory state on behalf of a tab; it never touches the
// session record itself - it reports the new directory back to the
// dispatcher, which is the only writer of session state.
package shell

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	apperrors "github.com/tabterm/host/internal/errors"
)

// Navigator executes filesystem operations relative to a caller-supplied
// working directory. It is stateless and safe for concurrent use by
// multiple sessions; per-session ordering is the dispatcher's concern.
type Navigator struct {
	// Home is the directory "~" expands to.
	Home string

	// SandboxRoot, when non-empty, is the boundary destructive operations
	// (rm, mv) must not escape and cd must not leave. Empty disables the
	// boundary except for the filesystem root itself.
	SandboxRoot string
}

// NewNavigator creates a navigator with "~" resolving to the user's home
// directory and an optional sandbox boundary.
func NewNavigator(sandboxRoot string) *Navigator {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/"
	}
	if sandboxRoot != "" {
		sandboxRoot = filepath.Clean(sandboxRoot)
	}
	return &Navigator{Home: home, SandboxRoot: sandboxRoot}
}

// resolvePath turns a user-supplied path into a cleaned absolute path
// relative to the current directory. "~" and "~/..." expand to the home
// directory. All ".." components are resolved here so nothing below ever
// sees an unnormalized path.
func (n *Navigator) resolvePath(dir, target string) string {
	if target == "~" {
		return n.Home
	}
	if strings.HasPrefix(target, "~/") {
		target = filepath.Join(n.Home, target[2:])
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	return filepath.Clean(target)
}

// inSandbox reports whether path lies within the sandbox boundary.
// With no boundary configured every path qualifies.
func (n *Navigator) inSandbox(path string) bool {
	if n.SandboxRoot == "" {
		return true
	}
	if path == n.SandboxRoot {
		return true
	}
	return strings.HasPrefix(path, n.SandboxRoot+string(filepath.Separator))
}

// guardDestructive rejects destructive operations on the filesystem root
// or outside the sandbox boundary.
func (n *Navigator) guardDestructive(path string) error {
	if path == string(filepath.Separator) {
		return apperrors.New(apperrors.CodeShellForbidden, "refusing to operate on the filesystem root")
	}
	if !n.inSandbox(path) {
		return apperrors.Newf(apperrors.CodeShellForbidden, "%s is outside the sandbox boundary", path)
	}
	return nil
}

// coversWorkingDir reports whether path is the working directory or one
// of its ancestors. Removing or relocating such a path would leave the
// session pointing at a directory that no longer exists.
func coversWorkingDir(cwd, path string) bool {
	return path == cwd || strings.HasPrefix(cwd, path+string(filepath.Separator))
}

// splitFlags separates leading-dash flags from positional operands.
func splitFlags(args []string) (flags, operands []string) {
	for _, a := range args {
		if strings.HasPrefix(a, "-") && a != "-" {
			flags = append(flags, a)
		} else {
			operands = append(operands, a)
		}
	}
	return flags, operands
}

func hasFlag(flags []string, letter byte) bool {
	for _, f := range flags {
		if strings.IndexByte(f[1:], letter) >= 0 {
			return true
		}
	}
	return false
}

// wrapStatErr converts an os error from a stat/read into a coded error
// using the user-visible name rather than the resolved absolute path.
func wrapStatErr(op, name string, err error) error {
	switch {
	case os.IsNotExist(err):
		return apperrors.Newf(apperrors.CodeShellNotFound, "%s: cannot access '%s': No such file or directory", op, name)
	case os.IsPermission(err):
		return apperrors.Newf(apperrors.CodeShellPermissionDenied, "%s: cannot access '%s': Permission denied", op, name)
	default:
		return apperrors.Wrap(apperrors.CodeShellInvalidArguments, fmt.Sprintf("%s: %s", op, name), err)
	}
}

// List enumerates a directory. Supports -a (include dotfiles) and -l
// (long format with humanized sizes and modification times). With no
// path operand the session's current directory is listed.
func (n *Navigator) List(dir string, args []string) (string, error) {
	flags, operands := splitFlags(args)
	showHidden := hasFlag(flags, 'a')
	longFormat := hasFlag(flags, 'l')

	path := dir
	name := dir
	if len(operands) > 0 {
		name = operands[len(operands)-1]
		path = n.resolvePath(dir, name)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", wrapStatErr("ls", name, err)
	}

	var visible []fs.DirEntry
	for _, e := range entries {
		if !showHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		visible = append(visible, e)
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].Name() < visible[j].Name() })

	if len(visible) == 0 {
		return "(empty directory)", nil
	}

	if longFormat {
		var lines []string
		for _, e := range visible {
			info, err := e.Info()
			if err != nil {
				lines = append(lines, fmt.Sprintf("?????????? %8s %s", "?", e.Name()))
				continue
			}
			display := e.Name()
			if e.IsDir() {
				display += "/"
			}
			lines = append(lines, fmt.Sprintf("%s %8s %s %s",
				info.Mode().String(),
				humanize.Bytes(uint64(info.Size())),
				info.ModTime().Format("Jan 02 15:04"),
				display))
		}
		return strings.Join(lines, "\n"), nil
	}

	var names []string
	for _, e := range visible {
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		} else {
			names = append(names, e.Name())
		}
	}
	return strings.Join(names, "  "), nil
}

// ChangeDir resolves target relative to dir and validates the result
// exists and is a directory before committing. The returned path is
// absolute and cleaned; the caller applies it to the session. With no
// target the home directory is used, matching interactive shells.
func (n *Navigator) ChangeDir(dir string, args []string) (string, error) {
	target := "~"
	if len(args) > 0 {
		target = args[0]
	}

	path := n.resolvePath(dir, target)

	if !n.inSandbox(path) {
		return "", apperrors.Newf(apperrors.CodeShellForbidden, "cd: %s: outside the sandbox boundary", target)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Newf(apperrors.CodeShellNotFound, "cd: %s: No such file or directory", target)
		}
		return "", wrapStatErr("cd", target, err)
	}
	if !info.IsDir() {
		return "", apperrors.Newf(apperrors.CodeShellNotADirectory, "cd: %s: Not a directory", target)
	}

	return path, nil
}

// MakeDir creates one or more directories. Supports -p (create parents,
// no error when the directory exists).
func (n *Navigator) MakeDir(dir string, args []string) (string, error) {
	flags, operands := splitFlags(args)
	if len(operands) == 0 {
		return "", apperrors.New(apperrors.CodeShellInvalidArguments, "mkdir: missing operand")
	}
	parents := hasFlag(flags, 'p')

	var results []string
	for _, op := range operands {
		path := n.resolvePath(dir, op)

		if parents {
			if err := os.MkdirAll(path, 0755); err != nil {
				return "", wrapStatErr("mkdir", op, err)
			}
			results = append(results, "Directory created: "+path)
			continue
		}

		if err := os.Mkdir(path, 0755); err != nil {
			if os.IsExist(err) {
				return "", apperrors.Newf(apperrors.CodeShellAlreadyExists, "mkdir: cannot create directory '%s': File exists", op)
			}
			if os.IsPermission(err) {
				return "", apperrors.Newf(apperrors.CodeShellPermissionDenied, "mkdir: cannot create directory '%s': Permission denied", op)
			}
			if os.IsNotExist(err) {
				return "", apperrors.Newf(apperrors.CodeShellNotFound, "mkdir: cannot create directory '%s': No such file or directory", op)
			}
			return "", wrapStatErr("mkdir", op, err)
		}
		results = append(results, "Directory created: "+path)
	}
	return strings.Join(results, "\n"), nil
}

// RemoveDir removes an empty directory.
func (n *Navigator) RemoveDir(dir string, args []string) (string, error) {
	_, operands := splitFlags(args)
	if len(operands) == 0 {
		return "", apperrors.New(apperrors.CodeShellInvalidArguments, "rmdir: missing operand")
	}

	op := operands[0]
	path := n.resolvePath(dir, op)
	if err := n.guardDestructive(path); err != nil {
		return "", err
	}
	if coversWorkingDir(dir, path) {
		return "", apperrors.Newf(apperrors.CodeShellForbidden, "rmdir: cannot remove '%s': it is the current directory or an ancestor of it", op)
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Newf(apperrors.CodeShellNotFound, "rmdir: failed to remove '%s': No such file or directory", op)
		}
		if os.IsPermission(err) {
			return "", apperrors.Newf(apperrors.CodeShellPermissionDenied, "rmdir: failed to remove '%s': Permission denied", op)
		}
		// Most common remaining case is ENOTEMPTY.
		return "", apperrors.Newf(apperrors.CodeShellInvalidArguments, "rmdir: failed to remove '%s': Directory not empty", op)
	}
	return "Directory removed: " + path, nil
}

// Remove deletes files, and directories with -r. -f suppresses the
// not-found error. The sandbox boundary, the filesystem root, and the
// working directory (or any ancestor of it) are always refused.
func (n *Navigator) Remove(dir string, args []string) (string, error) {
	flags, operands := splitFlags(args)
	if len(operands) == 0 {
		return "", apperrors.New(apperrors.CodeShellInvalidArguments, "rm: missing operand")
	}
	recursive := hasFlag(flags, 'r')
	force := hasFlag(flags, 'f')

	var results []string
	for _, op := range operands {
		path := n.resolvePath(dir, op)
		if err := n.guardDestructive(path); err != nil {
			return "", err
		}
		if coversWorkingDir(dir, path) {
			return "", apperrors.Newf(apperrors.CodeShellForbidden, "rm: cannot remove '%s': it is the current directory or an ancestor of it", op)
		}

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if force {
					continue
				}
				return "", apperrors.Newf(apperrors.CodeShellNotFound, "rm: cannot remove '%s': No such file or directory", op)
			}
			return "", wrapStatErr("rm", op, err)
		}

		if info.IsDir() {
			if !recursive {
				return "", apperrors.Newf(apperrors.CodeShellIsADirectory, "rm: cannot remove '%s': Is a directory", op)
			}
			if err := os.RemoveAll(path); err != nil {
				return "", wrapStatErr("rm", op, err)
			}
			results = append(results, "Removed directory: "+path)
			continue
		}

		if err := os.Remove(path); err != nil {
			return "", wrapStatErr("rm", op, err)
		}
		results = append(results, "Removed file: "+path)
	}

	if len(results) == 0 {
		return "", nil
	}
	return strings.Join(results, "\n"), nil
}

// Copy copies a file, or a directory tree with -r. When the destination
// is an existing directory, the source is copied into it.
func (n *Navigator) Copy(dir string, args []string) (string, error) {
	flags, operands := splitFlags(args)
	if len(operands) < 2 {
		return "", apperrors.New(apperrors.CodeShellInvalidArguments, "cp: missing file operand")
	}
	recursive := hasFlag(flags, 'r') || hasFlag(flags, 'R')

	src := n.resolvePath(dir, operands[0])
	dst := n.resolvePath(dir, operands[1])

	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Newf(apperrors.CodeShellNotFound, "cp: cannot stat '%s': No such file or directory", operands[0])
		}
		return "", wrapStatErr("cp", operands[0], err)
	}

	if info.IsDir() {
		if !recursive {
			return "", apperrors.Newf(apperrors.CodeShellIsADirectory, "cp: -r not specified; omitting directory '%s'", operands[0])
		}
		if dstInfo, err := os.Stat(dst); err == nil {
			if !dstInfo.IsDir() {
				return "", apperrors.Newf(apperrors.CodeShellAlreadyExists, "cp: cannot overwrite non-directory '%s' with directory '%s'", operands[1], operands[0])
			}
			dst = filepath.Join(dst, filepath.Base(src))
		}
		if err := copyTree(src, dst); err != nil {
			return "", wrapStatErr("cp", operands[0], err)
		}
		return fmt.Sprintf("Copied directory: %s -> %s", src, dst), nil
	}

	if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if err := copyFile(src, dst, info.Mode()); err != nil {
		return "", wrapStatErr("cp", operands[0], err)
	}
	return fmt.Sprintf("Copied file: %s -> %s", src, dst), nil
}

// Move renames a file or directory. When the destination is an existing
// directory and the source is a file, the source moves into it. Both
// endpoints must satisfy the sandbox boundary.
func (n *Navigator) Move(dir string, args []string) (string, error) {
	_, operands := splitFlags(args)
	if len(operands) < 2 {
		return "", apperrors.New(apperrors.CodeShellInvalidArguments, "mv: missing file operand")
	}

	src := n.resolvePath(dir, operands[0])
	dst := n.resolvePath(dir, operands[1])

	if err := n.guardDestructive(src); err != nil {
		return "", err
	}
	if err := n.guardDestructive(dst); err != nil {
		return "", err
	}
	if coversWorkingDir(dir, src) {
		return "", apperrors.Newf(apperrors.CodeShellForbidden, "mv: cannot move '%s': it is the current directory or an ancestor of it", operands[0])
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Newf(apperrors.CodeShellNotFound, "mv: cannot stat '%s': No such file or directory", operands[0])
		}
		return "", wrapStatErr("mv", operands[0], err)
	}

	if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() && !srcInfo.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}

	if err := os.Rename(src, dst); err != nil {
		return "", wrapStatErr("mv", operands[0], err)
	}
	return fmt.Sprintf("Moved: %s -> %s", src, dst), nil
}

// Cat returns the contents of one or more files.
func (n *Navigator) Cat(dir string, args []string) (string, error) {
	_, operands := splitFlags(args)
	if len(operands) == 0 {
		return "", apperrors.New(apperrors.CodeShellInvalidArguments, "cat: missing operand")
	}

	var parts []string
	for _, op := range operands {
		path := n.resolvePath(dir, op)

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", apperrors.Newf(apperrors.CodeShellNotFound, "cat: %s: No such file or directory", op)
			}
			return "", wrapStatErr("cat", op, err)
		}
		if info.IsDir() {
			return "", apperrors.Newf(apperrors.CodeShellIsADirectory, "cat: %s: Is a directory", op)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", wrapStatErr("cat", op, err)
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n"), nil
}

// Touch creates empty files, or updates timestamps on existing ones.
func (n *Navigator) Touch(dir string, args []string) (string, error) {
	_, operands := splitFlags(args)
	if len(operands) == 0 {
		return "", apperrors.New(apperrors.CodeShellInvalidArguments, "touch: missing file operand")
	}

	var results []string
	for _, op := range operands {
		path := n.resolvePath(dir, op)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			if os.IsPermission(err) {
				return "", apperrors.Newf(apperrors.CodeShellPermissionDenied, "touch: cannot touch '%s': Permission denied", op)
			}
			if os.IsNotExist(err) {
				return "", apperrors.Newf(apperrors.CodeShellNotFound, "touch: cannot touch '%s': No such file or directory", op)
			}
			return "", wrapStatErr("touch", op, err)
		}
		f.Close()

		now := time.Now()
		os.Chtimes(path, now, now)
		results = append(results, "Touched file: "+path)
	}
	return strings.Join(results, "\n"), nil
}

// Entries returns the names of entries in dir that start with prefix,
// directories suffixed with "/". Used by autocomplete; errors are
// swallowed into an empty result since a failed completion should never
// surface to the user.
func (n *Navigator) Entries(dir, prefix string) []string {
	base := dir
	namePrefix := prefix
	if strings.ContainsRune(prefix, filepath.Separator) {
		base = n.resolvePath(dir, filepath.Dir(prefix))
		namePrefix = filepath.Base(prefix)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), namePrefix) {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		if d := filepath.Dir(prefix); d != "." && d != "" && strings.ContainsRune(prefix, filepath.Separator) {
			name = filepath.Join(d, name)
			if e.IsDir() {
				name += "/"
			}
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// copyFile copies a single regular file preserving its mode.
func copyFile(src, dst string, mode fs.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode.Perm())
}

// copyTree recursively copies a directory.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}
