// Command rematch recomputes the stored matches of open requirements, for example after the
// scoring weights changed.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"recruiting-ats/internal/matching"
	"recruiting-ats/internal/notify"
	"recruiting-ats/internal/storage"
)

func main() {
	var dryRun bool
	var limit, threshold int
	var requirementID string
	flag.BoolVar(&dryRun, "dry-run", true, "If true, only score and print; do not persist matches")
	flag.IntVar(&limit, "limit", 200, "Max number of open requirements to process in one run")
	flag.IntVar(&threshold, "threshold", 60, "Default threshold for requirements without their own")
	flag.StringVar(&requirementID, "requirement", "", "Rematch only this requirement")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	log.Printf("Connecting to DB...")
	db, err := storage.NewDB(dbURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	var reqs []*storage.Requirement
	if requirementID != "" {
		r, err := db.GetRequirement(ctx, requirementID)
		if err != nil {
			log.Fatalf("requirement %s: %v", requirementID, err)
		}
		reqs = append(reqs, r)
	} else {
		reqs, err = db.ListOpenRequirements(ctx, limit)
		if err != nil {
			log.Fatalf("list open requirements: %v", err)
		}
	}
	log.Printf("Found %d requirements (limit %d)", len(reqs), limit)

	if dryRun {
		preview(ctx, db, reqs, threshold)
		return
	}

	matcher := matching.NewMatcher(db, notify.NewService(db, notify.NewHub(0)), matching.Config{
		Weights:          matching.DefaultWeights,
		DefaultThreshold: threshold,
	})
	failed := 0
	for _, r := range reqs {
		rep, err := matcher.MatchRequirement(ctx, r.ID, matching.Options{})
		if err != nil {
			log.Printf("requirement %s: %v", r.ID, err)
			failed++
			continue
		}
		log.Printf("Requirement %s (%s): %d scanned, %d matched, %d removed",
			r.ID, r.Title, rep.Scanned, rep.Matched, rep.Removed)
		// Keep load on a shared database low.
		time.Sleep(100 * time.Millisecond)
	}
	log.Printf("Rematch run complete (%d failed)", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// preview scores active candidates against each requirement without writing anything.
func preview(ctx context.Context, db *storage.DB, reqs []*storage.Requirement, threshold int) {
	candidates, err := db.ListCandidates(ctx, storage.CandidateFilter{Status: "active", Limit: 5000})
	if err != nil {
		log.Fatalf("list candidates: %v", err)
	}
	for _, r := range reqs {
		cutoff := threshold
		if r.MatchThreshold > 0 {
			cutoff = r.MatchThreshold
		}
		rp := matching.RequirementProfileOf(r)
		above, best := 0, 0
		for _, c := range candidates {
			res := matching.Score(rp, matching.CandidateProfile(c), matching.DefaultWeights)
			if res.Score >= cutoff {
				above++
			}
			if res.Score > best {
				best = res.Score
			}
		}
		log.Printf("[dry-run] Requirement %s (%s): %d of %d candidates >= %d, best %d",
			r.ID, r.Title, above, len(candidates), cutoff, best)
	}
}
