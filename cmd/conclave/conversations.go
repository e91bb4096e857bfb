package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/valerka1292/conclave/internal/config"
	"github.com/valerka1292/conclave/internal/history"
	"github.com/valerka1292/conclave/pkg/models"
)

// openStore loads config and opens the conversation store it points at.
func openStore(ctx context.Context, configPath string) (history.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg.History.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func printSummaries(summaries []models.ConversationSummary) {
	if len(summaries) == 0 {
		fmt.Println("no conversations")
		return
	}
	for _, s := range summaries {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %s\n", s.ID, s.UpdatedAt.Format("2006-01-02 15:04:05"), title)
	}
}

func runConversationsList(ctx context.Context, configPath string) error {
	store, err := openStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.ListSummaries(ctx)
	if err != nil {
		return err
	}
	printSummaries(summaries)
	return nil
}

func runConversationsSearch(ctx context.Context, configPath, query string) error {
	store, err := openStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.SearchSummaries(ctx, query)
	if err != nil {
		return err
	}
	printSummaries(summaries)
	return nil
}

func runConversationsGet(ctx context.Context, configPath, id string) error {
	store, err := openStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	title := conv.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%s — %s (%d messages)\n", conv.ID, title, len(conv.Messages))
	for _, msg := range conv.Messages {
		fmt.Printf("\n[%s] %s\n%s\n", msg.CreatedAt.Format("15:04:05"), msg.Role, msg.Content)
		if len(msg.Thoughts) > 0 {
			fmt.Printf("  thoughts:\n    %s\n", strings.Join(msg.Thoughts, "\n    "))
		}
	}
	return nil
}

func runConversationsDelete(ctx context.Context, configPath, id string) error {
	store, err := openStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}
