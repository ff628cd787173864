// Command mkinitrd walks a host directory of compiled ELF-64 binaries and
// writes a TAR-formatted initrd (spec §6 EXPANSION), adapted from the
// directory-walk shape of biscuit's mkfs.addfiles: where that tool
// replicated a host tree into a custom on-disk filesystem image, this one
// replicates it into a flat TAR archive, since src/initrd.Build reads
// files back out by exact name with no directory structure to preserve.
package main

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func addfiles(tw *tar.Writer, skeldir string) error {
	return filepath.WalkDir(skeldir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("accessing %q: %w", path, err)
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skeldir), string(filepath.Separator))
		if rel == "" || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

func main() {
	if len(os.Args) != 3 {
		fmt.Printf("Usage: %s <skel dir> <output initrd>\n", os.Args[0])
		os.Exit(1)
	}
	skeldir, outpath := os.Args[1], os.Args[2]

	out, err := os.Create(outpath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer out.Close()

	tw := tar.NewWriter(out)
	if err := addfiles(tw, skeldir); err != nil {
		fmt.Fprintln(os.Stderr, "mkinitrd:", err)
		os.Exit(1)
	}
	if err := tw.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "mkinitrd:", err)
		os.Exit(1)
	}
}
