package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/solarrouter/solarrouter/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Singleton documents live in the "router" collection, rules
// get one document each in "rules" keyed by rule name.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how the firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID may be empty, the client can infer it from the environment.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// LoadRules reads every document in the "rules" collection.
func (f *FirestoreProvider) LoadRules(ctx context.Context) ([]types.Rule, error) {
	iter := f.client.Collection("rules").Documents(ctx)
	defer iter.Stop()

	var rules []types.Rule
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate rules: %w", err)
		}
		r, err := ruleFromDoc(doc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// SaveRules replaces the "rules" collection with the given set. Documents
// for rules no longer in the set are deleted so removals survive restarts.
func (f *FirestoreProvider) SaveRules(ctx context.Context, rules []types.Rule) error {
	keep := make(map[string]bool, len(rules))
	for _, r := range rules {
		keep[r.Name] = true
		if err := f.setJSONDoc(ctx, f.client.Collection("rules").Doc(r.Name), r); err != nil {
			return fmt.Errorf("failed to save rule %q: %w", r.Name, err)
		}
	}

	iter := f.client.Collection("rules").Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate rules: %w", err)
		}
		if keep[doc.Ref.ID] {
			continue
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete rule %q: %w", doc.Ref.ID, err)
		}
	}
	return nil
}

// LoadOverrides reads the "router/overrides" document.
func (f *FirestoreProvider) LoadOverrides(ctx context.Context) (types.Overrides, bool, error) {
	var o types.Overrides
	found, err := f.getJSONDoc(ctx, f.client.Collection("router").Doc("overrides"), &o)
	if err != nil {
		return types.Overrides{}, false, fmt.Errorf("failed to fetch overrides doc: %w", err)
	}
	return o, found, nil
}

// SaveOverrides saves the "router/overrides" document.
func (f *FirestoreProvider) SaveOverrides(ctx context.Context, o types.Overrides) error {
	if err := f.setJSONDoc(ctx, f.client.Collection("router").Doc("overrides"), o); err != nil {
		return fmt.Errorf("failed to save overrides: %w", err)
	}
	return nil
}

// LoadTankState reads the "router/tankState" document.
func (f *FirestoreProvider) LoadTankState(ctx context.Context) (types.TankState, bool, error) {
	var s types.TankState
	found, err := f.getJSONDoc(ctx, f.client.Collection("router").Doc("tankState"), &s)
	if err != nil {
		return types.TankState{}, false, fmt.Errorf("failed to fetch tank state doc: %w", err)
	}
	return s, found, nil
}

// SaveTankState saves the "router/tankState" document.
func (f *FirestoreProvider) SaveTankState(ctx context.Context, s types.TankState) error {
	if err := f.setJSONDoc(ctx, f.client.Collection("router").Doc("tankState"), s); err != nil {
		return fmt.Errorf("failed to save tank state: %w", err)
	}
	return nil
}

// setJSONDoc stores v as a JSON string for portability across schema
// changes, alongside the version the document was written with.
func (f *FirestoreProvider) setJSONDoc(ctx context.Context, ref *firestore.DocumentRef, v any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": types.CurrentStateVersion,
	})
	return err
}

// getJSONDoc loads a document written by setJSONDoc. Returns false with a
// nil error when the document does not exist.
func (f *FirestoreProvider) getJSONDoc(ctx context.Context, ref *firestore.DocumentRef, v any) (bool, error) {
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	return true, unmarshalJSONDoc(doc, v)
}

func ruleFromDoc(doc *firestore.DocumentSnapshot) (types.Rule, error) {
	var r types.Rule
	if err := unmarshalJSONDoc(doc, &r); err != nil {
		return types.Rule{}, fmt.Errorf("rule %q: %w", doc.Ref.ID, err)
	}
	return r, nil
}

func unmarshalJSONDoc(doc *firestore.DocumentSnapshot, v any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("document 'json' field is not a string")
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to unmarshal document json: %w", err)
	}
	return nil
}
