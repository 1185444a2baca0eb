package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"
)

const archiveName = "all-workflows.zip"

// RebuildArchive writes versions/all-workflows.zip from the generation files
// currently on disk. Entries are named <base>/<base>.vN.json. It returns the
// number of files archived.
func (s *Store) RebuildArchive() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := filepath.Join(s.dir, versionsDir)

	files, err := filepath.Glob(filepath.Join(root, "*", "*"+fileExt))
	if err != nil {
		return 0, err
	}

	sort.Strings(files)

	tmp, err := os.CreateTemp(root, "."+archiveName+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	writer := zip.NewWriter(tmp)

	for _, file := range files {
		err = addToArchive(writer, root, file)
		if err != nil {
			_ = tmp.Close()

			return 0, err
		}
	}

	err = writer.Close()
	if err != nil {
		_ = tmp.Close()

		return 0, fmt.Errorf("failed to finish archive: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return 0, err
	}

	err = os.Rename(tmp.Name(), s.ArchivePath())
	if err != nil {
		return 0, fmt.Errorf("failed to replace archive: %w", err)
	}

	s.logger.Info("rebuilt backup archive", "files", len(files))

	return len(files), nil
}

func addToArchive(writer *zip.Writer, root, file string) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}

	name, err := filepath.Rel(root, file)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = filepath.ToSlash(name)
	header.Method = zip.Deflate

	entry, err := writer.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", header.Name, err)
	}

	source, err := os.Open(file) // #nosec G304
	if err != nil {
		return err
	}

	defer func() {
		_ = source.Close()
	}()

	_, err = io.Copy(entry, source)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", header.Name, err)
	}

	return nil
}
