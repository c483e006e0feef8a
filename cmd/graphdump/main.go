// Command graphdump renders a channel's pristine graph (and, for a single
// file, its content-vertex chain with conflicts highlighted) to a DOT file
// and a PNG image, for debugging.
package main

import (
	"os"
	"path/filepath"
	"strings"

	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/emicklei/dot"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/graphviz"
	"github.com/rcowham/pijulgo/internal/buildinfo"
	"github.com/rcowham/pijulgo/internal/logctx"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

const rootInode change.Inode = 0

func main() {
	var (
		repoDir = kingpin.Flag("repository", "Repository root.").Default(".").Short('R').String()
		chName  = kingpin.Flag("channel", "Channel to render.").Default("main").Short('c').String()
		path    = kingpin.Flag("path", "Render one file's content chain instead of the whole tree.").Short('p').String()
		outFile = kingpin.Flag("output", "Base output path (writes <output>.dot and <output>.png).").Default("graph").Short('o').String()
		debug   = kingpin.Flag("debug", "Enable debug logging.").Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(buildinfo.Print("graphdump")).Author("pijulgo")
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	log := logctx.New(*debug)

	p, err := pristine.Open(filepath.Join(*repoDir, ".pijul", "pristine"), log)
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	var g *dot.Graph
	err = p.View(func(txn pristine.ReadTxn) error {
		if *path == "" {
			g = graphviz.RenderTree(txn, *chName)
			return nil
		}
		inode, ok := resolvePath(txn, *chName, *path)
		if !ok {
			log.Fatalf("no inode recorded for %s on channel %q", *path, *chName)
		}
		pos, ok := schema.GetInodePosition(txn, *chName, inode)
		if !ok {
			log.Fatalf("no content vertex recorded for %s", *path)
		}
		g = graphviz.RenderFileChain(txn, *chName, pos)
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := os.WriteFile(*outFile+".dot", []byte(g.String()), 0644); err != nil {
		log.Fatal(err)
	}

	png, err := graphviz.RenderPNG(g)
	if err != nil {
		log.Errorf("render png: %v", err)
		return
	}
	if err := os.WriteFile(*outFile+".png", png, 0644); err != nil {
		log.Fatal(err)
	}
	log.Infof("wrote %s.dot and %s.png", *outFile, *outFile)
}

// resolvePath walks path's components through channelName's currently
// alive tree. Duplicated from diffrecord's own resolvePath rather than
// imported: graphdump is a standalone debug tool and has no other reason
// to depend on diffrecord.
func resolvePath(txn pristine.ReadTxn, channelName, p string) (change.Inode, bool) {
	p = strings.Trim(p, "/")
	if p == "" {
		return rootInode, true
	}
	current := rootInode
	for _, part := range strings.Split(p, "/") {
		child, ok := schema.ChildrenOf(txn, channelName, current)[part]
		if !ok {
			return 0, false
		}
		current = child
	}
	return current, true
}
