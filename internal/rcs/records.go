package rcs

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/errors"
)

// ToHistory turns parsed rlog output into a catalog history for the working
// path. Parents follow RCS numbering: a trunk revision descends from the
// previous trunk revision, the first revision of a branch from its branch
// point, and later branch revisions from their predecessor on the branch.
func ToHistory(f *RlogFile, path string, logger *logrus.Logger) (catalog.FileHistory, error) {
	h := catalog.FileHistory{Path: path, Branches: make(map[string]catalog.BranchID)}

	revs := make([]catalog.RevID, 0, len(f.Revisions))
	byRev := make(map[catalog.RevID]*RlogRevision, len(f.Revisions))
	for i := range f.Revisions {
		r := &f.Revisions[i]
		id, err := catalog.ParseRevID(r.Revision)
		if err != nil {
			return h, errors.MalformedRevisionTree(path, r.Revision, err.Error())
		}
		byRev[id] = r
		revs = append(revs, id)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].Compare(revs[j]) < 0 })

	tags := make(map[catalog.RevID][]string)
	for name, num := range f.Symbols {
		if catalog.IsMagicBranch(num) {
			b, err := catalog.ParseBranchID(num)
			if err == nil {
				h.Branches[name] = b
				continue
			}
		}
		if id, err := catalog.ParseRevID(num); err == nil {
			if _, ok := byRev[id]; ok {
				tags[id] = append(tags[id], name)
			} else if logger != nil {
				logger.WithFields(logrus.Fields{
					"file":     path,
					"tag":      name,
					"revision": num,
				}).Warn("Tag names a revision that does not exist, dropping it")
			}
			continue
		}
		if b, err := catalog.ParseBranchID(num); err == nil {
			h.Branches[name] = b
			continue
		}
		return h, errors.MalformedRevisionTree(path, num, "symbol "+name+" is neither a revision nor a branch")
	}

	lastOnBranch := make(map[catalog.BranchID]catalog.RevID)
	var lastTrunk catalog.RevID
	for _, id := range revs {
		r := byRev[id]
		rec := catalog.RevisionRecord{
			File:      path,
			Revision:  id,
			Author:    r.Author,
			Timestamp: r.Date,
			Message:   r.Message,
			State:     r.State,
			Tags:      tags[id],
		}
		if id.IsTrunk() {
			rec.Parent = lastTrunk
			lastTrunk = id
		} else {
			b := id.Branch()
			if prev, ok := lastOnBranch[b]; ok {
				rec.Parent = prev
			} else {
				rec.Parent = id.BranchPoint()
			}
			lastOnBranch[b] = id
		}
		h.Records = append(h.Records, rec)
	}
	return h, nil
}
