package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/pkg/client"
	"github.com/lumnicode/engine/pkg/logger"
	"github.com/lumnicode/engine/pkg/progress"
)

const maxPushBytes = 1 << 20

func parse(name string, args []string, define func(*flag.FlagSet)) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, errUsage{}
	}
	return fs, nil
}

func runProjects(ctx context.Context, app *cli, args []string) error {
	var opts client.ListProjectsOptions
	if _, err := parse("projects", args, func(fs *flag.FlagSet) {
		fs.StringVar(&opts.Search, "search", "", "name filter")
		fs.StringVar(&opts.Status, "status", "", "active or archived")
		fs.IntVar(&opts.Page, "page", 1, "page")
		fs.IntVar(&opts.PageSize, "page-size", 20, "page size")
	}); err != nil {
		return err
	}
	projects, page, err := app.api.ListProjects(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, "ID\tNAME\tSTATUS\tSTACK\tUPDATED")
	for _, p := range projects {
		fmt.Fprintf(app.out, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Status, strings.Join(p.TechStack, ","), p.UpdatedAt.Format(time.RFC3339))
	}
	if page != nil {
		fmt.Fprintf(app.out, "\npage %d, %d total\n", page.Page, page.Total)
	}
	return nil
}

func runCreate(ctx context.Context, app *cli, args []string) error {
	var in client.CreateProjectInput
	fs, err := parse("create", args, func(fs *flag.FlagSet) {
		fs.StringVar(&in.Description, "description", "", "project description")
		fs.StringSliceVar(&in.TechStack, "stack", nil, "tech stack tags")
		fs.StringVar(&in.ProjectType, "type", "", "project type")
		fs.StringVar(&in.Template, "template", "", "template name")
	})
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage{}
	}
	in.Name = fs.Arg(0)
	p, err := app.api.CreateProject(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "created project %s (%s)\n", p.Name, p.ID)
	return nil
}

func runFiles(ctx context.Context, app *cli, args []string) error {
	if len(args) != 1 {
		return errUsage{}
	}
	files, err := app.api.ListFiles(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, "ID\tPATH\tLANGUAGE\tBYTES")
	for _, f := range files {
		fmt.Fprintf(app.out, "%s\t%s\t%s\t%d\n", f.ID, f.Path, f.Language, len(f.Content))
	}
	return nil
}

// runRemove deletes a file and reports which file an editor would now show.
func runRemove(ctx context.Context, app *cli, args []string) error {
	if len(args) != 2 {
		return errUsage{}
	}
	files, err := app.api.ListFiles(ctx, args[0])
	if err != nil {
		return err
	}
	set := client.NewFileSet(files)
	if !set.Select(args[1]) {
		return fmt.Errorf("file %s not found in project %s", args[1], args[0])
	}
	if err := app.api.DeleteFile(ctx, args[1]); err != nil {
		return err
	}
	set.Remove(args[1])
	if next, ok := set.Selected(); ok {
		fmt.Fprintf(app.out, "deleted; next file %s\n", next.Path)
	} else {
		fmt.Fprintln(app.out, "deleted; project has no files left")
	}
	return nil
}

func runPush(ctx context.Context, app *cli, args []string) error {
	var watch bool
	var delay time.Duration
	fs, err := parse("push", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&watch, "watch", false, "keep saving changes after the first push")
		fs.DurationVar(&delay, "delay", client.DefaultAutosaveDelay, "idle delay before a change is saved")
	})
	if err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errUsage{}
	}
	projectID, root := fs.Arg(0), fs.Arg(1)

	remote, err := app.api.ListFiles(ctx, projectID)
	if err != nil {
		return err
	}
	byPath := lo.KeyBy(remote, func(f client.File) string { return f.Path })

	local, err := collect(root)
	if err != nil {
		return err
	}
	for _, rel := range local {
		if err := pushOne(ctx, app, projectID, root, rel, byPath); err != nil {
			return err
		}
	}
	fmt.Fprintf(app.out, "pushed %d files\n", len(local))
	if !watch {
		return nil
	}
	_ = app.out.Flush()
	return watchDir(ctx, app, projectID, root, delay, byPath)
}

func collect(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

func readSmall(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxPushBytes {
		return "", fmt.Errorf("%s is larger than %d bytes", path, maxPushBytes)
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func pushOne(ctx context.Context, app *cli, projectID, root, rel string, byPath map[string]client.File) error {
	content, err := readSmall(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	if f, ok := byPath[rel]; ok {
		if f.Content == content {
			return nil
		}
		if err := app.api.SaveContent(ctx, f.ID, content); err != nil {
			return fmt.Errorf("save %s: %w", rel, err)
		}
		f.Content = content
		byPath[rel] = f
		return nil
	}
	created, err := app.api.CreateFile(ctx, client.CreateFileInput{
		ProjectID: projectID,
		Name:      filepath.Base(rel),
		Path:      rel,
		Content:   content,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}
	byPath[rel] = *created
	return nil
}

// watchDir saves edited files through an Autosaver until ctx ends.
func watchDir(ctx context.Context, app *cli, projectID, root string, delay time.Duration, byPath map[string]client.File) error {
	log := logger.Named("push")
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			return w.Add(path)
		}
		return err
	}); err != nil {
		return err
	}

	saver := client.NewAutosaver(delay, func(ctx context.Context, fileID, content string) error {
		return app.api.SaveContent(ctx, fileID, content)
	}, client.OnSaveError(func(fileID string, err error) {
		fmt.Fprintf(os.Stderr, "autosave %s failed: %v\n", fileID, err)
	}))
	defer saver.Close()

	fmt.Println("watching", root, "(ctrl-c to stop)")
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return saver.Flush(flushCtx)
		case err := <-w.Errors:
			log.Warn("watch error", zap.Error(err))
		case ev := <-w.Events:
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			rel, err := filepath.Rel(root, ev.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			f, known := byPath[rel]
			if !known {
				if err := pushOne(ctx, app, projectID, root, rel, byPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
					log.Warn("create failed", zap.Error(err))
				}
				continue
			}
			content, err := readSmall(ev.Name)
			if err != nil {
				continue
			}
			saver.Touch(f.ID, content)
		}
	}
}

func runGenerate(ctx context.Context, app *cli, args []string) error {
	var stack []string
	var detach bool
	fs, err := parse("generate", args, func(fs *flag.FlagSet) {
		fs.StringSliceVar(&stack, "stack", nil, "tech stack tags")
		fs.BoolVar(&detach, "detach", false, "return once the session has started")
	})
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errUsage{}
	}
	projectID := fs.Arg(0)
	prompt := strings.Join(fs.Args()[1:], " ")

	res, err := app.api.Generate(ctx, projectID, prompt, stack)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "session %s %s\n", res.SessionID, res.Status)
	if detach {
		return nil
	}
	_ = app.out.Flush()
	return tail(ctx, app, projectID, res.SessionID)
}

func runWatch(ctx context.Context, app *cli, args []string) error {
	if len(args) != 2 {
		return errUsage{}
	}
	return tail(ctx, app, args[0], args[1])
}

// tail prints progress for a session until it finishes. Ctrl-C stops the session.
func tail(ctx context.Context, app *cli, projectID, sessionID string) error {
	pc, err := app.api.Progress(projectID, sessionID, progress.WithLogger(logger.Named("progress")))
	if err != nil {
		return err
	}

	finished := make(chan progress.State, 1)
	tracker := progress.NewTracker(sessionID, func(s progress.State) { finished <- s })
	pc.On(progress.Wildcard, tracker.Listener())
	pc.On(progress.Wildcard, func(u progress.Update) {
		switch u.Type {
		case progress.TypeFileCreated, progress.TypeFileUpdated:
			fmt.Printf("[%3d%%] %s %s\n", u.Progress, u.Type, u.CurrentFile)
		default:
			fmt.Printf("[%3d%%] %s\n", u.Progress, u.Message)
		}
	})

	if err := pc.Connect(ctx); err != nil {
		return err
	}
	defer pc.Disconnect()

	select {
	case s := <-finished:
		if s.Status == string(progress.TypeError) {
			return errors.New(lo.CoalesceOrEmpty(s.Err, s.Message))
		}
		return nil
	case <-pc.Done():
		return errors.New("progress stream closed before the session finished")
	case <-ctx.Done():
		pc.Stop()
		if _, err := app.api.StopSession(context.Background(), sessionID); err != nil && client.StatusOf(err) != http.StatusConflict {
			return err
		}
		fmt.Println("stopped")
		return nil
	}
}
