// Package storage хранит файлы изображений пользовательских объявлений на диске.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"apartment-bot/internal/domain"
)

// Disk сохраняет изображения в каталог загрузок.
type Disk struct {
	dir      string
	maxBytes int64
}

var _ domain.ImageStore = (*Disk)(nil)

// NewDisk создаёт хранилище и каталог при необходимости.
func NewDisk(dir string, maxBytes int64) (*Disk, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: empty upload dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create upload dir: %w", err)
	}
	return &Disk{dir: dir, maxBytes: maxBytes}, nil
}

// Save пишет файл как {userID}_{uuid}{ext} и возвращает путь к нему.
func (d *Disk) Save(userID, filename string, r io.Reader) (string, error) {
	name := sanitize(userID) + "_" + uuid.NewString() + imageExt(filename)
	path := filepath.Join(d.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}
	src := r
	if d.maxBytes > 0 {
		src = io.LimitReader(r, d.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && d.maxBytes > 0 && n > d.maxBytes {
		err = fmt.Errorf("%w: image exceeds %d bytes", domain.ErrValidation, d.maxBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// Open открывает сохранённый файл. Пути вне каталога загрузок отклоняются.
func (d *Disk) Open(path string) (io.ReadCloser, error) {
	if !d.owns(path) {
		return nil, fmt.Errorf("storage: path outside upload dir: %s", path)
	}
	return os.Open(path)
}

// Remove удаляет файл; отсутствующий файл не считается ошибкой.
func (d *Disk) Remove(path string) error {
	if !d.owns(path) {
		return fmt.Errorf("storage: path outside upload dir: %s", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Disk) owns(path string) bool {
	rel, err := filepath.Rel(filepath.Clean(d.dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}

func imageExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	default:
		return ".jpg"
	}
}
