package comments

import (
	"context"
	"fmt"

	"github.com/UkralStul/comments-service/internal/dataloader"
	"github.com/UkralStul/comments-service/internal/domain"
	"github.com/UkralStul/comments-service/internal/storage"
)

// MaxDepth - сколько уровней потомков подгружается под каждым корнем.
const MaxDepth = 3

// Node - комментарий вместе с вложениями и ответами (от старых к новым).
type Node struct {
	*domain.Comment
	Attachments []*domain.Attachment `json:"attachments"`
	Children    []*Node              `json:"children"`
}

// materialize строит деревья для roots: по одному батчу на уровень и один батч вложений.
func materialize(ctx context.Context, store storage.Storage, roots []*domain.Comment) ([]*Node, error) {
	loaders := dataloader.For(ctx, store)

	nodes := make([]*Node, 0, len(roots))
	all := make([]*Node, 0, len(roots))
	frontier := make([]*Node, 0, len(roots))
	for _, c := range roots {
		n := newNode(c)
		nodes = append(nodes, n)
		all = append(all, n)
		frontier = append(frontier, n)
	}

	for depth := 0; depth < MaxDepth && len(frontier) > 0; depth++ {
		ids := make([]string, len(frontier))
		for i, n := range frontier {
			ids[i] = n.ID
		}
		children, err := loaders.Children(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load replies: %w", err)
		}

		var next []*Node
		for _, parent := range frontier {
			for _, c := range children[parent.ID] {
				child := newNode(c)
				parent.Children = append(parent.Children, child)
				next = append(next, child)
				all = append(all, child)
			}
		}
		frontier = next
	}

	ids := make([]string, len(all))
	for i, n := range all {
		ids[i] = n.ID
	}
	attachments, err := loaders.Attachments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}
	for _, n := range all {
		if list := attachments[n.ID]; len(list) > 0 {
			n.Attachments = list
		}
	}
	return nodes, nil
}

func newNode(c *domain.Comment) *Node {
	return &Node{
		Comment:     c,
		Attachments: []*domain.Attachment{},
		Children:    []*Node{},
	}
}
