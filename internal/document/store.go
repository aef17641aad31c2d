package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fakhrymubarak/weather-widget/internal/model"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	redisv9 "github.com/redis/go-redis/v9"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrElementNotFound  = errors.New("element not found")
	ErrNotTextNode      = errors.New("element does not hold text")
)

// Store keeps rendered pages in Redis. A document is a hash holding its
// creation time, a set of mount element ids, and one list of child nodes
// per mount element. All keys of a document share its TTL.
type Store struct {
	client redisv9.Cmdable
	clock  clockwork.Clock
	ttl    time.Duration
}

func NewStore(client redisv9.Cmdable, ttl time.Duration, clock ...clockwork.Clock) *Store {
	c := clockwork.NewRealClock()
	if len(clock) > 0 && clock[0] != nil {
		c = clock[0]
	}
	return &Store{client: client, clock: c, ttl: ttl}
}

func docKey(id string) string      { return "page:" + id }
func elementsKey(id string) string { return "page:" + id + ":elements" }
func childrenKey(id, elementID string) string {
	return "page:" + id + ":el:" + elementID + ":children"
}

// Create stores a new document with the given mount elements.
func (s *Store) Create(ctx context.Context, mountIDs ...string) (*Document, error) {
	id := uuid.NewString()
	_, err := s.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.HSet(ctx, docKey(id), "created_at", s.clock.Now().UTC().Format(time.RFC3339Nano))
		pipe.Expire(ctx, docKey(id), s.ttl)
		if len(mountIDs) > 0 {
			members := make([]any, len(mountIDs))
			for i, m := range mountIDs {
				members[i] = m
			}
			pipe.SAdd(ctx, elementsKey(id), members...)
			pipe.Expire(ctx, elementsKey(id), s.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return &Document{ID: id, store: s}, nil
}

// Open returns a handle to an existing document.
func (s *Store) Open(ctx context.Context, id string) (*Document, error) {
	n, err := s.client.Exists(ctx, docKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	if n == 0 {
		return nil, ErrDocumentNotFound
	}
	return &Document{ID: id, store: s}, nil
}

type Document struct {
	ID    string
	store *Store
}

// CreatedAt reads the creation timestamp recorded by Create.
func (d *Document) CreatedAt(ctx context.Context) (time.Time, error) {
	v, err := d.store.client.HGet(ctx, docKey(d.ID), "created_at").Result()
	if errors.Is(err, redisv9.Nil) {
		return time.Time{}, ErrDocumentNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, v)
}

// GetElementByID looks up a mount element. It fails with ErrElementNotFound
// when the document has no element with that id.
func (d *Document) GetElementByID(ctx context.Context, id string) (*Element, error) {
	ok, err := d.store.client.SIsMember(ctx, elementsKey(d.ID), id).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup element %q: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: #%s", ErrElementNotFound, id)
	}
	return &Element{ID: id, doc: d, index: -1}, nil
}

// Children returns the nodes appended under a mount element, in append order.
func (d *Document) Children(ctx context.Context, elementID string) ([]model.Node, error) {
	vals, err := d.store.client.LRange(ctx, childrenKey(d.ID, elementID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	nodes := make([]model.Node, 0, len(vals))
	for _, v := range vals {
		var n model.Node
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return nil, fmt.Errorf("decode node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Element is either a mount element (index -1) or a node appended under one.
type Element struct {
	ID  string
	Tag string

	doc    *Document
	parent string
	index  int64
}

func (e *Element) ChildCount(ctx context.Context) (int64, error) {
	return e.doc.store.client.LLen(ctx, childrenKey(e.doc.ID, e.ID)).Result()
}

// AppendChild adds an empty node with the given tag under a mount element.
func (e *Element) AppendChild(ctx context.Context, tag string) (*Element, error) {
	if e.index >= 0 {
		return nil, fmt.Errorf("append to %s: nested children are not supported", e.ID)
	}
	b, err := json.Marshal(model.Node{Tag: tag})
	if err != nil {
		return nil, err
	}
	key := childrenKey(e.doc.ID, e.ID)
	var push *redisv9.IntCmd
	_, err = e.doc.store.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		push = pipe.RPush(ctx, key, b)
		pipe.Expire(ctx, key, e.doc.store.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append child: %w", err)
	}
	idx := push.Val() - 1
	return &Element{
		ID:     e.ID + "." + strconv.FormatInt(idx, 10),
		Tag:    tag,
		doc:    e.doc,
		parent: e.ID,
		index:  idx,
	}, nil
}

// SetText replaces the text of an appended node.
func (e *Element) SetText(ctx context.Context, text string) error {
	if e.index < 0 {
		return fmt.Errorf("%w: #%s", ErrNotTextNode, e.ID)
	}
	b, err := json.Marshal(model.Node{Tag: e.Tag, Text: text})
	if err != nil {
		return err
	}
	return e.doc.store.client.LSet(ctx, childrenKey(e.doc.ID, e.parent), e.index, b).Err()
}
