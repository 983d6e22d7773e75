package topology

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/errors"
)

// placeTags attaches every symbolic tag to the last commit carrying one of
// its revisions. A tag is ambiguous when its revisions fall in more than one
// commit.
func (res *resolution) placeTags() error {
	tagged := make(map[string][]*catalog.RevisionRecord)
	for _, r := range res.cat.Records() {
		for _, t := range r.Tags {
			tagged[t] = append(tagged[t], r)
		}
	}
	names := make([]string, 0, len(tagged))
	for name := range tagged {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		recs := tagged[name]
		commits := make([]*Commit, len(recs))
		var target *Commit
		for i, r := range recs {
			c := res.plan.CommitOf(res.cl.CandidateOf(r))
			commits[i] = c
			if target == nil || c.Candidate.Seq > target.Candidate.Seq {
				target = c
			}
		}

		var files, revs []string
		for i, r := range recs {
			if commits[i] != target {
				files = append(files, r.File)
				revs = append(revs, string(r.Revision))
			}
		}

		if len(files) > 0 {
			if res.opts.TagMode != TagPickLatest {
				return errors.AmbiguousTagAssignment(name, files, revs).
					WithContext(errors.KeyCandidate, target.Candidate.ID)
			}
			res.plan.Conflicts = append(res.plan.Conflicts, Conflict{
				Kind:    ConflictAmbiguousTag,
				Subject: name,
				Detail: fmt.Sprintf("%d of %d tagged revisions are in commits before the latest tagged commit",
					len(files), len(recs)),
				Resolution: fmt.Sprintf("tag placed on latest commit %d on %s", target.Order, target.Branch.Name),
				Files:      files,
				Revisions:  revs,
			})
			res.logger.WithFields(logrus.Fields{
				"tag":    name,
				"files":  len(files),
				"branch": target.Branch.Name,
			}).Warn("Ambiguous tag placed on latest commit")
		}

		res.plan.Tags = append(res.plan.Tags, &Tag{Name: name, Target: target})
	}
	return nil
}
