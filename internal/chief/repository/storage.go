package repository

import (
	"io"
	"os"
	"path/filepath"
)

type Storage struct {
	Workdir string
}

func NewStorage(workdir string) *Storage {
	return &Storage{Workdir: workdir}
}

func (s *Storage) ArtifactsDir() string {
	return filepath.Join(s.Workdir, "artifacts")
}

func (s *Storage) LogsDir() string {
	return filepath.Join(s.Workdir, "logs")
}

func (s *Storage) EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

func (s *Storage) LogPath(pipelineID, logType string) string {
	return filepath.Join(s.LogsDir(), pipelineID+"."+logType+".log")
}

func (s *Storage) MoveFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(src)
}
