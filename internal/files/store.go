// Package files хранит файлы вложений: на диске через afero или в MinIO.
package files

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound возвращается, если объекта с таким ключом нет.
var ErrNotFound = errors.New("file not found")

// Store - хранилище объектов с ключами вида "a/b/c.png".
type Store interface {
	// Save записывает объект целиком; существующий объект заменяется.
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Move переносит объект, не копируя его в новое место с сохранением старого.
	Move(ctx context.Context, from, to string) error
	// Remove удаляет объект; отсутствие объекта не ошибка.
	Remove(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CleanName приводит имя загруженного файла к безопасному виду.
func CleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}

// TempKey - место для ещё не привязанного вложения.
func TempKey(name string) string {
	return path.Join("tmp", uuid.NewString(), CleanName(name))
}

// AttachmentKey - место для вложения, привязанного к комментарию.
func AttachmentKey(commentID, name string) string {
	return path.Join("attachments", commentID, uuid.NewString()+"-"+CleanName(path.Base(name)))
}

func cleanKey(key string) (string, error) {
	key = path.Clean("/" + key)[1:]
	if key == "" || key == "." {
		return "", errors.New("empty file key")
	}
	return key, nil
}
