//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Run with: MONGO_URI=mongodb://localhost:27017 go test -tags integration ./internal/store/
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	runContract(t, func(t *testing.T, clock Clock) Store {
		dbName := fmt.Sprintf("smokesearch_test_%d", time.Now().UnixNano())
		m, err := OpenMongo(context.Background(), uri, dbName)
		require.NoError(t, err)
		m.Clock = clock
		t.Cleanup(func() {
			_ = m.client.Database(dbName).Drop(context.Background())
			m.Close()
		})
		return m
	})
}
