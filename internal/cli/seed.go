package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UkralStul/comments-service/internal/auth"
	"github.com/UkralStul/comments-service/internal/comments"
)

// seedDemo заполняет хранилище небольшим деревом комментариев для ручной проверки.
func seedDemo(ctx context.Context, svc *comments.Service) error {
	as := func(name string) context.Context {
		return auth.WithIdentity(ctx, &auth.Identity{UserID: "seed-" + name, Name: name, Email: name + "@example.com"})
	}

	first, err := svc.Create(as("alice"), comments.CreateInput{Text: "Отличный сервис! [strong]Работает[/strong] быстро."})
	if err != nil {
		return fmt.Errorf("failed to create comment 1: %w", err)
	}

	reply, err := svc.Create(as("bob"), comments.CreateInput{Text: "Спасибо! Рад, что вам понравилось.", ParentID: first.ID})
	if err != nil {
		return fmt.Errorf("failed to create reply: %w", err)
	}

	if _, err := svc.Create(as("alice"), comments.CreateInput{
		Text:     `Подробности в [a href="https://example.com"]документации[/a].`,
		ParentID: reply.ID,
	}); err != nil {
		return fmt.Errorf("failed to create nested reply: %w", err)
	}

	if _, err := svc.Create(as("carol"), comments.CreateInput{Text: "А как насчёт [code]глубокой[/code] вложенности?"}); err != nil {
		return fmt.Errorf("failed to create comment 2: %w", err)
	}

	slog.Info("demo data filled", "root", first.ID)
	return nil
}
