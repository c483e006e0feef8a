package diffrecord

import (
	"sort"
	"time"

	"github.com/alitto/pond"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/pijulgo/apply"
	"github.com/rcowham/pijulgo/blobstore"
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
	"github.com/rcowham/pijulgo/worktree"
)

// Options configures one Record call.
type Options struct {
	Algorithm   Algorithm
	Authors     []change.Author
	Message     string
	Description *string
	// Timestamp overrides the change's recorded time; nil uses time.Now.
	Timestamp func() time.Time
	// Workers bounds the per-file diff pool; <= 0 runs every file inline,
	// matching output.Options.Workers/blobstore.Store's poolSize<=0
	// convention.
	Workers int
}

// Record implements component E (spec §4.5): it compares channelName's
// theoretical content against tree's actual bytes, builds the hunks
// describing every difference, assembles and serializes a new Change,
// writes its blob, and applies it to channelName. All of it runs inside
// txn, the same all-or-nothing shape apply.Apply documents: a returned
// error leaves nothing durably recorded.
//
// A nil result with a nil error means no difference was found and
// nothing was recorded.
func Record(txn pristine.WriteTxn, log *logrus.Logger, channelName string, blobs *blobstore.Store, tree SourceTree, opts Options) (*change.Change, change.Hash, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	before := worktree.Snapshot(txn.ReadTxn, channelName)
	after := worktree.NewTree(false)
	infos := map[string]FileInfo{}
	if err := tree.Walk(func(fi FileInfo) error {
		if fi.IsDir {
			return nil
		}
		after.AddFile(fi.Path)
		infos[fi.Path] = fi
		return nil
	}); err != nil {
		return nil, change.Hash{}, errors.Wrap(err, "diffrecord: walk working copy")
	}

	added, deleted, moved := before.Diff(after)
	sort.Strings(added)
	sort.Strings(deleted)

	b := &builder{
		txn:         txn,
		channelName: channelName,
		resolver:    newChainResolver(txn, blobs),
		selfChange:  schema.PeekNextChangeId(txn.ReadTxn),
	}

	for from, to := range moved {
		if err := b.move(from, to); err != nil {
			return nil, change.Hash{}, err
		}
	}
	for _, path := range deleted {
		if err := b.delete(path); err != nil {
			return nil, change.Hash{}, err
		}
	}
	for _, path := range added {
		data, err := tree.ReadFile(path)
		if err != nil {
			return nil, change.Hash{}, err
		}
		if err := b.add(path, data, infos[path].Executable); err != nil {
			return nil, change.Hash{}, err
		}
	}

	// Every other file present both before and after this walk (neither
	// freshly added nor a move destination) existed at the same path
	// already, and may still have edited content.
	addedSet := make(map[string]bool, len(added))
	for _, p := range added {
		addedSet[p] = true
	}
	movedTo := make(map[string]bool, len(moved))
	for _, to := range moved {
		movedTo[to] = true
	}
	still := after.Files()
	sort.Strings(still)
	var candidates []string
	for _, path := range still {
		if !addedSet[path] && !movedTo[path] {
			candidates = append(candidates, path)
		}
	}

	// Reading each candidate's working-copy bytes and diffing it against
	// its theoretical content is the expensive, per-file, purely-read
	// step; it fans out across a worker pool the same way output.Write
	// pools its per-file render+write jobs, then every resulting plan is
	// applied to the shared builder one at a time.
	plans := make([]*editPlan, len(candidates))
	planErrs := make([]error, len(candidates))
	if opts.Workers > 0 && len(candidates) > 0 {
		pool := pond.New(opts.Workers, 0, pond.MinWorkers(1))
		for i, path := range candidates {
			i, path := i, path
			pool.Submit(func() {
				data, err := tree.ReadFile(path)
				if err != nil {
					planErrs[i] = err
					return
				}
				plans[i], planErrs[i] = b.planEdit(path, data, opts.Algorithm)
			})
		}
		pool.StopAndWait()
	} else {
		for i, path := range candidates {
			data, err := tree.ReadFile(path)
			if err != nil {
				planErrs[i] = err
				continue
			}
			plans[i], planErrs[i] = b.planEdit(path, data, opts.Algorithm)
		}
	}
	for i, err := range planErrs {
		if err != nil {
			return nil, change.Hash{}, err
		}
		if plans[i] != nil {
			b.applyPlan(plans[i])
		}
	}

	if len(b.hunks) == 0 {
		return nil, change.Hash{}, nil
	}

	referenced := b.referencedHashes()
	deps := change.MinimalCover(referenced, func(h change.Hash) []change.Hash {
		id, ok := schema.LookupChangeId(txn.ReadTxn, h)
		if !ok {
			return nil
		}
		var out []change.Hash
		for _, parent := range schema.Dependencies(txn.ReadTxn, id) {
			if ph, ok := schema.LookupHash(txn.ReadTxn, parent); ok {
				out = append(out, ph)
			}
		}
		return out
	})

	ts := opts.Timestamp
	if ts == nil {
		ts = defaultTimestamp
	}
	c := &change.Change{
		Header: change.Header{
			Authors:     opts.Authors,
			Message:     opts.Message,
			Description: opts.Description,
			Timestamp:   ts(),
		},
		Dependencies: deps,
		Hunks:        b.hunks,
		Contents:     b.contents.Bytes(),
	}

	h, err := c.Hash()
	if err != nil {
		return nil, change.Hash{}, errors.Wrap(err, "diffrecord: hash change")
	}
	raw, err := change.Serialize(c)
	if err != nil {
		return nil, change.Hash{}, errors.Wrap(err, "diffrecord: serialize change")
	}
	if err := blobs.Save(h, raw); err != nil {
		return nil, change.Hash{}, errors.Wrap(err, "diffrecord: save change blob")
	}
	if _, err := apply.Apply(txn, log, channelName, h, c); err != nil {
		return nil, change.Hash{}, errors.Wrap(err, "diffrecord: apply recorded change")
	}

	log.WithFields(logrus.Fields{"channel": channelName, "hash": h, "hunks": len(c.Hunks)}).Info("recorded change")
	return c, h, nil
}

func defaultTimestamp() time.Time { return time.Now().UTC() }
