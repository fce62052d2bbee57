// Package mocks provides mock implementations of the ports for tests.
//
// Mocks are generated with go.uber.org/mock (gomock). To regenerate after
// interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockDocumentStore(ctrl)
//	store.EXPECT().Get(gomock.Any(), "data/app-config.json").Return(body, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=document_store_mock.go github.com/upstars/corporate-discounts/internal/ports DocumentStore
