// Package challenge выдаёт и одноразово проверяет пары ключ/ответ
// для проверки "человек ли это".
package challenge

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/comments-service/internal/domain"
)

const (
	// DefaultTTL - время жизни неиспользованного ключа.
	DefaultTTL = 5 * time.Minute

	responseField = "captcha_value"
)

// Challenge - то, что отдаётся клиенту.
type Challenge struct {
	Key      string `json:"key"`
	Question string `json:"question"`
}

// Gate - контракт проверки. Consume атомарно проверяет и инвалидирует ключ.
type Gate interface {
	Issue(ctx context.Context) (Challenge, error)
	Consume(ctx context.Context, key, response string) error
}

// ErrInvalid возвращается на любую неудачу: неизвестный, истёкший,
// уже использованный ключ или неверный ответ неразличимы.
func ErrInvalid() error {
	return domain.NewValidationError(responseField, "Invalid CAPTCHA value.")
}

// ErrRequired возвращается, если ключ или ответ не переданы.
func ErrRequired() error {
	return domain.NewValidationError(responseField, "CAPTCHA is required.")
}

// Puzzle генерирует арифметические задачи вида "3 + 5".
type Puzzle struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewPuzzle() *Puzzle {
	return &Puzzle{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate возвращает вопрос и ожидаемый ответ.
func (p *Puzzle) Generate() (string, string) {
	p.mu.Lock()
	a := p.rnd.Intn(10)
	b := p.rnd.Intn(10)
	op := p.rnd.Intn(2)
	p.mu.Unlock()

	if op == 0 {
		return fmt.Sprintf("%d + %d", a, b), strconv.Itoa(a + b)
	}
	// без отрицательных ответов
	if a < b {
		a, b = b, a
	}
	return fmt.Sprintf("%d - %d", a, b), strconv.Itoa(a - b)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func matches(expected, given string) bool {
	return expected != "" && normalize(expected) == normalize(given)
}
