// Package firestore implements the backend Kilroy document store on Cloud
// Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"kilroy/internal/domain/entities"
)

// Collection is the Firestore collection that holds Kilroy documents.
const Collection = "kilroys"

// NewClient connects to Firestore for projectID. When credentialsFile names
// an existing file it is used; otherwise Application Default Credentials are.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, errors.New("firestore project id is empty")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			log.Printf("[FIRESTORE] Credentials file %s not usable (%v), falling back to default credentials", credentialsFile, err)
		} else {
			log.Printf("[FIRESTORE] Using credentials file %s", credentialsFile)
			opts = append(opts, option.WithCredentialsFile(credentialsFile))
		}
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	log.Printf("[FIRESTORE] Client initialized for project %s", projectID)
	return client, nil
}

// KilroyStore implements repository.KilroyStore.
type KilroyStore struct {
	client *firestore.Client
}

func NewKilroyStore(client *firestore.Client) *KilroyStore {
	return &KilroyStore{client: client}
}

func (s *KilroyStore) Put(ctx context.Context, doc *entities.Kilroy) error {
	if doc.ID == "" {
		return errors.New("kilroy document id is empty")
	}
	if _, err := s.client.Collection(Collection).Doc(doc.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to write kilroy %s: %w", doc.ID, err)
	}
	return nil
}

// RangeQuery runs geohash >= lo AND geohash < hi. Documents that fail to
// decode are logged and skipped.
func (s *KilroyStore) RangeQuery(ctx context.Context, lo, hi string) ([]*entities.Kilroy, error) {
	q := s.client.Collection(Collection).
		Where("geohash", ">=", lo).
		Where("geohash", "<", hi)
	return s.collect(ctx, q.Documents(ctx))
}

func (s *KilroyStore) Latest(ctx context.Context, limit int) ([]*entities.Kilroy, error) {
	q := s.client.Collection(Collection).OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.collect(ctx, q.Documents(ctx))
}

func (s *KilroyStore) collect(ctx context.Context, it *firestore.DocumentIterator) ([]*entities.Kilroy, error) {
	defer it.Stop()

	var out []*entities.Kilroy
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query kilroys: %w", err)
		}

		if missing := missingFields(snap.Data()); len(missing) > 0 {
			log.Printf("[FIRESTORE] Skipping document %s without %v", snap.Ref.ID, missing)
			continue
		}
		var doc entities.Kilroy
		if err := snap.DataTo(&doc); err != nil {
			log.Printf("[FIRESTORE] Skipping undecodable document %s: %v", snap.Ref.ID, err)
			continue
		}
		doc.ID = snap.Ref.ID
		out = append(out, &doc)
	}
	return out, nil
}

// missingFields lists the required keys absent from a stored document.
// DataTo alone would zero-fill them, hiding the difference between an empty
// value and no value.
func missingFields(data map[string]interface{}) []string {
	var missing []string
	for _, f := range entities.RequiredFields {
		if _, ok := data[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
