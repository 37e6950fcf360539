package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/intake/internal/client/client"
	"github.com/dmitrijs2005/intake/internal/netx"
	"github.com/dmitrijs2005/intake/internal/server/models"
)

var errUsage = errors.New("usage")

func usage(s string) error {
	return fmt.Errorf("%w: %s", errUsage, s)
}

func (a *App) Submit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("submit <form> <role>=<path> ...")
	}
	formName := args[0]

	roles, err := parseKeyValues(args[1:])
	if err != nil {
		return err
	}
	files := make([]netx.FilePart, 0, len(roles))
	for _, arg := range args[1:] {
		role, path, _ := strings.Cut(arg, "=")
		files = append(files, netx.FilePart{Role: role, Path: path})
	}

	fields, err := GetFields(a.reader, "Enter metadata as name=value (sid, time_point, centre, ...)", a.out)
	if err != nil {
		return err
	}

	res, err := a.api.Submit(ctx, formName, fields, files)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "upload %s: %s\n", res.Upload.ID, res.Upload.Status)
	if res.Report != nil {
		fmt.Fprintln(a.out, res.Report.String())
	}
	return nil
}

func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("get <id>")
	}
	u, err := a.api.Get(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "id:         %s\n", u.ID)
	fmt.Fprintf(a.out, "form:       %s\n", u.FormName)
	fmt.Fprintf(a.out, "status:     %s\n", u.Status)
	fmt.Fprintf(a.out, "created by: %s at %s\n", u.CreatedBy, u.CreatedAt.Format(time.RFC3339))
	for _, f := range u.Fields {
		fmt.Fprintf(a.out, "  %s = %s\n", f.Name, f.Value)
	}
	for _, f := range u.Files {
		fmt.Fprintf(a.out, "  [%s] %s %d bytes sha1 %s\n", f.Role, f.DataName, f.Size, f.SHA1Hex)
	}
	if u.Error != nil {
		fmt.Fprintf(a.out, "error:\n%s\n", *u.Error)
	}
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	kv, err := parseKeyValues(args)
	if err != nil {
		return err
	}

	f := client.ListFilter{
		FormName: kv["form"],
		Status:   models.Status(kv["status"]),
		Centre:   kv["centre"],
	}
	if v, ok := kv["limit"]; ok {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return usage("limit must be a number")
		}
	}

	list, err := a.api.List(ctx, f)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no uploads")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFORM\tSID\tTIME POINT\tSTATUS\tCREATED")
	for _, u := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.FormName, u.Field("sid"), u.Field("time_point"), u.Status, u.CreatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *App) Dashboard(ctx context.Context, args []string) error {
	centre := ""
	if len(args) > 0 {
		centre = args[0]
	}

	cells, err := a.api.Dashboard(ctx, centre)
	if err != nil {
		return err
	}
	if len(cells) == 0 {
		fmt.Fprintln(a.out, "no slots")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SID\tTIME POINT\tFORM\tSTATUS\tUPLOAD")
	for _, c := range cells {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.SubjectID, c.TimePoint, c.FormName, c.Status, c.UploadID)
	}
	return tw.Flush()
}

func (a *App) Reconcile(ctx context.Context) error {
	report, err := a.api.Reconcile(ctx)
	if err != nil {
		return err
	}

	for _, b := range report.Batches {
		if b.Skipped {
			fmt.Fprintf(a.out, "%s: skipped (%s)\n", b.Kind, b.Reason)
			continue
		}
		counts := b.Counts()
		fmt.Fprintf(a.out, "%s: %d validated, %d rejected, %d pending, %d deferred, %d failed\n",
			b.Kind, counts["validated"], counts["rejected"], counts["pending"], counts["deferred"], counts["failed"])
		for _, o := range b.Outcomes {
			if o.Diagnostic != "" {
				fmt.Fprintf(a.out, "  %s %s: %s\n", o.UploadID, o.Result, o.Diagnostic)
			}
		}
	}
	return nil
}

func (a *App) Respond(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("respond <name> <Validated|Rejected> [message]")
	}
	r := client.Response{Name: args[0], Status: args[1], Message: strings.Join(args[2:], " ")}
	if err := a.api.RecordResponse(ctx, r); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "recorded %s for %s\n", r.Status, r.Name)
	return nil
}

func (a *App) Health(ctx context.Context) error {
	if err := a.api.Ping(ctx); err != nil {
		a.setMode(ctx, ModeOffline)
		return err
	}
	a.setMode(ctx, ModeOnline)
	fmt.Fprintln(a.out, "server is ready")
	return nil
}
