package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/rootcause/internal/models"
)

func TestSQLiteCatalog_InsertSkipsDuplicates(t *testing.T) {
	dir := t.TempDir()
	cat, err := NewSQLiteCatalog(filepath.Join(dir, "sub", "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	ctx := context.Background()

	recs := []models.Record{
		{Component: "motor", Model: "m-200", FaultDescription: "Burnt smell", RootCause: "Insulation", CorrectiveAction: "Rewind"},
		{Component: "pump", FaultDescription: "Leak at shaft", RootCause: "Seal", CorrectiveAction: "Replace seal"},
	}
	n, err := cat.Insert(ctx, recs, "seed.csv")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	more := []models.Record{
		recs[0],
		{Component: "motor", Model: "m-300", FaultDescription: "Vibration", RootCause: "Bearing", CorrectiveAction: "Replace bearing"},
	}
	n, err = cat.Insert(ctx, more, "upload.csv")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1 (duplicate ignored)", n)
	}

	count, err := cat.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}

	all, err := cat.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0] != recs[0] || all[2].FaultDescription != "Vibration" {
		t.Errorf("All = %+v", all)
	}
}

func TestSQLiteCatalog_ComponentsAndModels(t *testing.T) {
	cat, err := NewSQLiteCatalog(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	ctx := context.Background()

	_, err = cat.Insert(ctx, []models.Record{
		{Component: "pump", FaultDescription: "a", RootCause: "x", CorrectiveAction: "y"},
		{Component: "motor", Model: "m-300", FaultDescription: "b", RootCause: "x", CorrectiveAction: "y"},
		{Component: "motor", Model: "m-200", FaultDescription: "c", RootCause: "x", CorrectiveAction: "y"},
		{Component: "motor", FaultDescription: "d", RootCause: "x", CorrectiveAction: "y"},
	}, "")
	if err != nil {
		t.Fatal(err)
	}

	comps, err := cat.Components(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(comps, []string{"motor", "pump"}) {
		t.Errorf("Components = %v", comps)
	}

	ms, err := cat.Models(ctx, "Motors")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ms, []string{"m-200", "m-300"}) {
		t.Errorf("Models = %v", ms)
	}

	ms, err = cat.Models(ctx, "pump")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 0 || ms == nil {
		t.Errorf("Models(pump) = %#v, want empty non-nil", ms)
	}
}

func TestSQLiteCatalog_EmptyInsert(t *testing.T) {
	cat, err := NewSQLiteCatalog(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	n, err := cat.Insert(context.Background(), nil, "")
	if err != nil || n != 0 {
		t.Errorf("Insert(nil) = %d, %v", n, err)
	}
}
