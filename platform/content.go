package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eringen/storefront/content"
)

// dataField is the metaobject field that carries the serialized document.
const dataField = "data"

const listPageSize = 250

// ContentStore keeps page documents as platform metaobjects. It implements
// content.Store.
type ContentStore struct {
	client *Client
}

// NewContentStore stores documents as metaobjects through client.
func NewContentStore(client *Client) *ContentStore {
	return &ContentStore{client: client}
}

type metaobjectField struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

type metaobjectNode struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Handle    string            `json:"handle"`
	UpdatedAt string            `json:"updatedAt"`
	Fields    []metaobjectField `json:"fields"`
}

func (n metaobjectNode) record() content.Record {
	rec := content.Record{ID: n.ID, Kind: n.Type, Handle: n.Handle}
	for _, f := range n.Fields {
		if f.Key == dataField && f.Value != nil {
			rec.Data = []byte(*f.Value)
		}
	}
	if t, err := time.Parse(time.RFC3339, n.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec
}

const metaobjectUpsertMutation = `mutation metaobjectUpsert($handle: MetaobjectHandleInput!, $metaobject: MetaobjectUpsertInput!) {
  metaobjectUpsert(handle: $handle, metaobject: $metaobject) {
    metaobject { id type handle updatedAt fields { key value } }
    userErrors { field message code }
  }
}`

func (s *ContentStore) Upsert(ctx context.Context, kind, handle string, data []byte) (content.Record, error) {
	var out struct {
		MetaobjectUpsert struct {
			Metaobject *metaobjectNode `json:"metaobject"`
			UserErrors []UserError     `json:"userErrors"`
		} `json:"metaobjectUpsert"`
	}
	vars := map[string]any{
		"handle": map[string]any{"type": kind, "handle": handle},
		"metaobject": map[string]any{
			"fields": []any{map[string]any{"key": dataField, "value": string(data)}},
		},
	}
	if err := s.client.do(ctx, "metaobjectUpsert", metaobjectUpsertMutation, vars, &out); err != nil {
		return content.Record{}, err
	}
	if err := userErrorsErr("metaobjectUpsert", out.MetaobjectUpsert.UserErrors); err != nil {
		return content.Record{}, err
	}
	if out.MetaobjectUpsert.Metaobject == nil {
		return content.Record{}, fmt.Errorf("platform metaobjectUpsert: no metaobject returned for %s", handle)
	}
	return out.MetaobjectUpsert.Metaobject.record(), nil
}

const metaobjectByHandleQuery = `query metaobjectByHandle($handle: MetaobjectHandleInput!) {
  metaobjectByHandle(handle: $handle) { id type handle updatedAt fields { key value } }
}`

func (s *ContentStore) byHandle(ctx context.Context, kind, handle string) (*metaobjectNode, error) {
	var out struct {
		MetaobjectByHandle *metaobjectNode `json:"metaobjectByHandle"`
	}
	vars := map[string]any{"handle": map[string]any{"type": kind, "handle": handle}}
	if err := s.client.do(ctx, "metaobjectByHandle", metaobjectByHandleQuery, vars, &out); err != nil {
		return nil, err
	}
	if out.MetaobjectByHandle == nil {
		return nil, content.ErrNotFound
	}
	return out.MetaobjectByHandle, nil
}

func (s *ContentStore) Fetch(ctx context.Context, kind, handle string) (content.Record, error) {
	node, err := s.byHandle(ctx, kind, handle)
	if err != nil {
		return content.Record{}, err
	}
	return node.record(), nil
}

func (s *ContentStore) LookupID(ctx context.Context, kind, handle string) (string, error) {
	node, err := s.byHandle(ctx, kind, handle)
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

const metaobjectDeleteMutation = `mutation metaobjectDelete($id: ID!) {
  metaobjectDelete(id: $id) {
    deletedId
    userErrors { field message code }
  }
}`

func (s *ContentStore) Delete(ctx context.Context, id string) error {
	var out struct {
		MetaobjectDelete struct {
			DeletedID  *string     `json:"deletedId"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"metaobjectDelete"`
	}
	if err := s.client.do(ctx, "metaobjectDelete", metaobjectDeleteMutation, map[string]any{"id": id}, &out); err != nil {
		return err
	}
	for _, ue := range out.MetaobjectDelete.UserErrors {
		if strings.EqualFold(ue.Code, "RECORD_NOT_FOUND") {
			return content.ErrNotFound
		}
	}
	if err := userErrorsErr("metaobjectDelete", out.MetaobjectDelete.UserErrors); err != nil {
		return err
	}
	if out.MetaobjectDelete.DeletedID == nil || *out.MetaobjectDelete.DeletedID == "" {
		return content.ErrNotFound
	}
	return nil
}

const metaobjectsQuery = `query metaobjects($type: String!, $first: Int!, $after: String) {
  metaobjects(type: $type, first: $first, after: $after) {
    nodes { id type handle updatedAt fields { key value } }
    pageInfo { hasNextPage endCursor }
  }
}`

func (s *ContentStore) List(ctx context.Context, kind string) ([]content.Record, error) {
	var recs []content.Record
	var after *string
	for {
		var out struct {
			Metaobjects struct {
				Nodes    []metaobjectNode `json:"nodes"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"metaobjects"`
		}
		vars := map[string]any{"type": kind, "first": listPageSize, "after": after}
		if err := s.client.do(ctx, "metaobjects", metaobjectsQuery, vars, &out); err != nil {
			return nil, err
		}
		for _, n := range out.Metaobjects.Nodes {
			recs = append(recs, n.record())
		}
		if !out.Metaobjects.PageInfo.HasNextPage || out.Metaobjects.PageInfo.EndCursor == "" {
			return recs, nil
		}
		cursor := out.Metaobjects.PageInfo.EndCursor
		after = &cursor
	}
}
