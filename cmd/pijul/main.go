// Command pijul is the CLI entrypoint over the components in this module:
// init, record, apply, unrecord, output, channel, tag, and log.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/rcowham/pijulgo/apply"
	"github.com/rcowham/pijulgo/blobstore"
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/channel"
	"github.com/rcowham/pijulgo/diffrecord"
	"github.com/rcowham/pijulgo/internal/buildinfo"
	"github.com/rcowham/pijulgo/internal/exitcode"
	"github.com/rcowham/pijulgo/internal/logctx"
	"github.com/rcowham/pijulgo/output"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
	"github.com/rcowham/pijulgo/repoconfig"
)

// repo resolves the on-disk layout rooted at dir: a single bbolt pristine
// file, a fanned blobstore directory, and a YAML config file, all under
// dir/.pijul.
type repo struct {
	dir         string
	pristine    *pristine.Pristine
	blobs       *blobstore.Store
	cfg         *repoconfig.Config
	channelName string
}

func dotDir(dir string) string          { return filepath.Join(dir, ".pijul") }
func pristinePath(dir string) string    { return filepath.Join(dotDir(dir), "pristine") }
func blobsPath(dir string) string       { return filepath.Join(dotDir(dir), "changes") }
func configPath(dir string) string      { return filepath.Join(dotDir(dir), "config.yaml") }

func openRepo(dir string, log *logrus.Logger, channelOverride string) (*repo, error) {
	cfg, err := repoconfig.LoadFile(configPath(dir))
	if err != nil {
		return nil, err
	}
	p, err := pristine.Open(pristinePath(dir), log)
	if err != nil {
		return nil, err
	}
	blobs, err := blobstore.Open(blobsPath(dir), cfg.Workers, log)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	name := cfg.DefaultChannel
	if channelOverride != "" {
		name = channelOverride
	}
	return &repo{dir: dir, pristine: p, blobs: blobs, cfg: cfg, channelName: name}, nil
}

func (r *repo) close() {
	r.blobs.Close()
	_ = r.pristine.Close()
}

func main() {
	app := kingpin.New("pijul", "A patch-based distributed version control system.")
	app.UsageTemplate(kingpin.CompactUsageTemplate).Version(buildinfo.Print("pijul")).Author("pijulgo")
	app.HelpFlag.Short('h')

	debug := app.Flag("debug", "Enable debug logging.").Bool()
	repoDir := app.Flag("repository", "Repository root.").Default(".").Short('R').String()
	channelFlag := app.Flag("channel", "Channel to operate on (overrides config default).").Short('c').String()

	initCmd := app.Command("init", "Create a new repository.")

	recordCmd := app.Command("record", "Record a new change from the working copy.")
	recordMessage := recordCmd.Flag("message", "Change message.").Short('m').String()

	applyCmd := app.Command("apply", "Apply a serialized change file to a channel.")
	applyFile := applyCmd.Arg("file", "Path to a serialized change.").Required().String()

	unrecordCmd := app.Command("unrecord", "Unapply the current top change of a channel.")

	outputCmd := app.Command("output", "Materialize a channel's tree into the working copy.")

	logCmd := app.Command("log", "List the changes applied to a channel, most recent first.")

	channelCmd := app.Command("channel", "Manage channels.")
	channelNewCmd := channelCmd.Command("new", "Create a channel.")
	channelNewName := channelNewCmd.Arg("name", "Channel name.").Required().String()
	channelForkCmd := channelCmd.Command("fork", "Fork a channel.")
	channelForkFrom := channelForkCmd.Arg("from", "Source channel.").Required().String()
	channelForkTo := channelForkCmd.Arg("to", "New channel name.").Required().String()
	channelRenameCmd := channelCmd.Command("rename", "Rename a channel.")
	channelRenameFrom := channelRenameCmd.Arg("from", "Existing channel.").Required().String()
	channelRenameTo := channelRenameCmd.Arg("to", "New name.").Required().String()
	channelDropCmd := channelCmd.Command("drop", "Delete a channel and unapply all its changes.")
	channelDropName := channelDropCmd.Arg("name", "Channel to drop.").Required().String()
	channelListCmd := channelCmd.Command("list", "List known channels.")

	tagCmd := app.Command("tag", "Freeze a channel's state as a tag.")
	tagCheckoutCmd := tagCmd.Command("checkout", "Create a fresh channel from a tag.")
	tagCheckoutHash := tagCheckoutCmd.Arg("hash", "Tag hash.").Required().String()
	tagCheckoutInto := tagCheckoutCmd.Arg("into", "New channel name.").Required().String()

	parsed := kingpin.MustParse(app.Parse(os.Args[1:]))

	log := logctx.New(*debug)
	log.Infof("%s", buildinfo.Print("pijul"))

	dir, err := filepath.Abs(*repoDir)
	if err != nil {
		fatal(log, err)
	}

	if parsed == initCmd.FullCommand() {
		runInit(log, dir)
		return
	}

	r, err := openRepo(dir, log, *channelFlag)
	if err != nil {
		fatal(log, err)
	}
	defer r.close()

	switch parsed {
	case recordCmd.FullCommand():
		runRecord(r, log, *recordMessage)
	case applyCmd.FullCommand():
		runApply(r, log, *applyFile)
	case unrecordCmd.FullCommand():
		runUnrecord(r, log)
	case outputCmd.FullCommand():
		runOutput(r, log)
	case logCmd.FullCommand():
		runLog(r)
	case channelNewCmd.FullCommand():
		runChannelNew(r, log, *channelNewName)
	case channelForkCmd.FullCommand():
		runChannelFork(r, log, *channelForkFrom, *channelForkTo)
	case channelRenameCmd.FullCommand():
		runChannelRename(r, log, *channelRenameFrom, *channelRenameTo)
	case channelDropCmd.FullCommand():
		runChannelDrop(r, log, *channelDropName)
	case channelListCmd.FullCommand():
		runChannelList(r)
	case tagCmd.FullCommand():
		runTag(r, log)
	case tagCheckoutCmd.FullCommand():
		runTagCheckout(r, log, *tagCheckoutHash, *tagCheckoutInto)
	}
}

func fatal(log *logrus.Logger, err error) {
	log.Error(err)
	os.Exit(exitcode.Fatal)
}

func recoverable(log *logrus.Logger, err error) {
	log.Error(err)
	os.Exit(exitcode.Recoverable)
}

func runInit(log *logrus.Logger, dir string) {
	if err := os.MkdirAll(dotDir(dir), 0755); err != nil {
		fatal(log, err)
	}
	if _, err := os.Stat(configPath(dir)); os.IsNotExist(err) {
		if err := os.WriteFile(configPath(dir), []byte("default_channel: "+repoconfig.DefaultChannel+"\n"), 0644); err != nil {
			fatal(log, err)
		}
	}
	p, err := pristine.Open(pristinePath(dir), log)
	if err != nil {
		fatal(log, err)
	}
	defer p.Close()
	err = p.Update(func(txn pristine.WriteTxn) error {
		return channel.Open(txn, repoconfig.DefaultChannel)
	})
	if err != nil {
		fatal(log, err)
	}
	log.Infof("initialized repository at %s", dir)
}

func runRecord(r *repo, log *logrus.Logger, message string) {
	tree := diffrecord.NewOSSourceTree(r.dir)
	var hash change.Hash
	err := r.pristine.Update(func(txn pristine.WriteTxn) error {
		c, h, err := diffrecord.Record(txn, log, r.channelName, r.blobs, tree, diffrecord.Options{
			Message: message,
			Workers: r.cfg.Workers,
		})
		if err != nil || c == nil {
			return err
		}
		hash = h
		return nil
	})
	if err != nil {
		recoverable(log, err)
	}
	if hash.IsZero() {
		log.Info("nothing to record")
		return
	}
	log.Infof("recorded change %s on channel %q", hash, r.channelName)
}

func runApply(r *repo, log *logrus.Logger, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		fatal(log, err)
	}
	c, err := change.Parse(raw)
	if err != nil {
		recoverable(log, err)
	}
	h := change.HashBytes(raw)
	if err := r.blobs.Save(h, raw); err != nil {
		fatal(log, err)
	}
	err = r.pristine.Update(func(txn pristine.WriteTxn) error {
		_, err := apply.Apply(txn, log, r.channelName, h, c)
		return err
	})
	if err != nil {
		recoverable(log, err)
	}
	log.Infof("applied change %s to channel %q", h, r.channelName)
}

func runUnrecord(r *repo, log *logrus.Logger) {
	err := r.pristine.Update(func(txn pristine.WriteTxn) error {
		ordinal := schema.CurrentOrdinal(txn.ReadTxn, r.channelName)
		if ordinal == 0 {
			return fmt.Errorf("channel %q has no changes to unrecord", r.channelName)
		}
		id, ok := schema.ChangeAtOrdinal(txn.ReadTxn, r.channelName, ordinal)
		if !ok {
			return fmt.Errorf("channel %q: ordinal %d has no recorded change", r.channelName, ordinal)
		}
		h, ok := schema.LookupHash(txn.ReadTxn, id)
		if !ok {
			return fmt.Errorf("change %d has no recorded hash", id)
		}
		raw, err := r.blobs.Load(h)
		if err != nil {
			return err
		}
		c, err := change.Parse(raw)
		if err != nil {
			return err
		}
		return apply.Unapply(txn, log, r.channelName, id, c)
	})
	if err != nil {
		recoverable(log, err)
	}
	log.Infof("unrecorded top change of channel %q", r.channelName)
}

func runOutput(r *repo, log *logrus.Logger) {
	wc := output.NewOSWorkingCopy(r.dir)
	err := r.pristine.View(func(txn pristine.ReadTxn) error {
		return output.Write(txn, r.channelName, r.blobs, wc, output.Options{Workers: r.cfg.Workers}, log)
	})
	if err != nil {
		recoverable(log, err)
	}
}

func runLog(r *repo) {
	_ = r.pristine.View(func(txn pristine.ReadTxn) error {
		top := schema.CurrentOrdinal(txn, r.channelName)
		for ordinal := top; ordinal >= 1; ordinal-- {
			id, ok := schema.ChangeAtOrdinal(txn, r.channelName, ordinal)
			if !ok {
				continue
			}
			h, _ := schema.LookupHash(txn, id)
			fmt.Printf("%d\t%s\n", ordinal, h)
		}
		return nil
	})
}

func runChannelNew(r *repo, log *logrus.Logger, name string) {
	err := r.pristine.Update(func(txn pristine.WriteTxn) error {
		return channel.Open(txn, name)
	})
	if err != nil {
		recoverable(log, err)
	}
}

func runChannelFork(r *repo, log *logrus.Logger, from, to string) {
	err := r.pristine.Update(func(txn pristine.WriteTxn) error {
		return channel.Fork(txn, from, to)
	})
	if err != nil {
		recoverable(log, err)
	}
}

func runChannelRename(r *repo, log *logrus.Logger, from, to string) {
	err := r.pristine.Update(func(txn pristine.WriteTxn) error {
		return channel.Rename(txn, from, to)
	})
	if err != nil {
		recoverable(log, err)
	}
}

func runChannelDrop(r *repo, log *logrus.Logger, name string) {
	err := r.pristine.Update(func(txn pristine.WriteTxn) error {
		return channel.Drop(txn, r.blobs, log, name)
	})
	if err != nil {
		recoverable(log, err)
	}
}

func runChannelList(r *repo) {
	_ = r.pristine.View(func(txn pristine.ReadTxn) error {
		names := schema.ListChannelEntries(txn)
		sort.Strings(names)
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	})
}

func runTag(r *repo, log *logrus.Logger) {
	var h change.Hash
	err := r.pristine.Update(func(txn pristine.WriteTxn) error {
		tagHash, err := channel.Tag(txn, r.blobs, r.channelName)
		h = tagHash
		return err
	})
	if err != nil {
		recoverable(log, err)
	}
	fmt.Println(h)
}

func runTagCheckout(r *repo, log *logrus.Logger, hashStr, into string) {
	h, err := change.ParseHash(hashStr)
	if err != nil {
		recoverable(log, err)
	}
	err = r.pristine.Update(func(txn pristine.WriteTxn) error {
		return channel.TagCheckout(txn, r.blobs, log, h, into)
	})
	if err != nil {
		recoverable(log, err)
	}
}
