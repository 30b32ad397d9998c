package printers

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"tableflip.dev/shopdesk/pkg/app"
	"tableflip.dev/shopdesk/pkg/dashboard"
	"tableflip.dev/shopdesk/pkg/notice"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

const timeLayout = "2006-01-02 15:04"

// PrettyPrint renders console views as colored tables.
type PrettyPrint struct {
	Out io.Writer
	// ShowID adds the document id column.
	ShowID bool
	// Selected and Pending mark rows; either may be nil.
	Selected func(id string) bool
	Pending  func(id string) bool
}

func (pp *PrettyPrint) out() io.Writer {
	if pp.Out == nil {
		return color.Output
	}
	return pp.Out
}

func (pp *PrettyPrint) NewLine() {
	_, _ = fmt.Fprintln(pp.out())
}

func (pp *PrettyPrint) Title(title string) {
	t := color.New(color.Bold, color.Underline)
	_, _ = t.Fprintln(pp.out(), title)
}

func (pp *PrettyPrint) TitleWithCount(title string, count int, one, many string) {
	t := color.New(color.Bold, color.Underline)
	c := color.New(color.Faint)

	_, _ = t.Fprint(pp.out(), title)
	noun := many
	if count == 1 {
		noun = one
	}
	_, _ = c.Fprintf(pp.out(), " - %d %s\n", count, noun)
}

func (pp *PrettyPrint) none() {
	f := color.New(color.Faint, color.Italic)
	_, _ = f.Fprint(pp.out(), " none\n\n")
}

func (pp *PrettyPrint) marker(id string) string {
	switch {
	case pp.Pending != nil && pp.Pending(id):
		return color.New(color.FgHiYellow).Sprint("…")
	case pp.Selected != nil && pp.Selected(id):
		return color.New(color.FgHiCyan).Sprint("●")
	}
	return " "
}

func (pp *PrettyPrint) table(header ...interface{}) *uitable.Table {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 40
	bold := color.New(color.Bold)
	row := make([]interface{}, 0, len(header)+2)
	row = append(row, "")
	if pp.ShowID {
		row = append(row, bold.Sprint("ID"))
	}
	for _, h := range header {
		row = append(row, bold.Sprint(h))
	}
	tbl.AddRow(row...)
	return tbl
}

func (pp *PrettyPrint) row(tbl *uitable.Table, id string, cells ...interface{}) {
	row := make([]interface{}, 0, len(cells)+2)
	row = append(row, pp.marker(id))
	if pp.ShowID {
		row = append(row, color.New(color.FgHiYellow, color.Faint).Sprint(id))
	}
	row = append(row, cells...)
	tbl.AddRow(row...)
}

// Orders renders one page of orders.
func (pp *PrettyPrint) Orders(page viewmodel.Page[record.Order]) {
	if page.Total == 0 {
		pp.none()
		return
	}
	tbl := pp.table("Order No", "Name", "Email", "Phone", "Total", "Payment", "Status", "Date & Time")
	for _, o := range page.Items {
		pp.row(tbl, o.ID,
			o.Number(),
			o.Customer.Name,
			o.Customer.Email,
			o.Customer.Phone,
			money(o.Total),
			o.PaymentStatus(),
			Status(o.Status),
			when(o.CreatedAt),
		)
	}
	_, _ = fmt.Fprintln(pp.out(), tbl)
	pp.Pager(page.Page, page.TotalPages, page.Total, "order", "orders")
}

// Queries renders one page of contact queries.
func (pp *PrettyPrint) Queries(page viewmodel.Page[record.Query]) {
	if page.Total == 0 {
		pp.none()
		return
	}
	tbl := pp.table("Name", "Email", "Phone", "Message", "Status", "Received")
	for _, q := range page.Items {
		pp.row(tbl, q.ID,
			q.Name,
			q.Email,
			q.Phone,
			excerpt(q.Message, 36),
			Status(q.Status),
			when(q.CreatedAt),
		)
	}
	_, _ = fmt.Fprintln(pp.out(), tbl)
	pp.Pager(page.Page, page.TotalPages, page.Total, "query", "queries")
}

// Query renders one contact query in full.
func (pp *PrettyPrint) Query(q record.Query) {
	pp.Title(q.Name)
	tbl := uitable.New()
	tbl.Wrap = true
	tbl.MaxColWidth = 72
	faint := color.New(color.Faint)
	tbl.AddRow(faint.Sprint("ID"), q.ID)
	tbl.AddRow(faint.Sprint("Email"), q.Email)
	tbl.AddRow(faint.Sprint("Phone"), q.Phone)
	tbl.AddRow(faint.Sprint("Status"), Status(q.Status))
	tbl.AddRow(faint.Sprint("Received"), when(q.CreatedAt))
	tbl.AddRow(faint.Sprint("Message"), q.Message)
	if q.AdminReply != "" {
		tbl.AddRow(faint.Sprint("Reply"), q.AdminReply)
		tbl.AddRow(faint.Sprint("Replied"), when(q.AdminReplyAt))
	}
	_, _ = fmt.Fprintln(pp.out(), tbl)
}

// Products renders one page of products.
func (pp *PrettyPrint) Products(page viewmodel.Page[record.Product]) {
	if page.Total == 0 {
		pp.none()
		return
	}
	tbl := pp.table("Title", "Category", "SKU", "Price", "Stock", "Status", "Images", "Added")
	for _, p := range page.Items {
		pp.row(tbl, p.ID,
			p.Title,
			p.Category,
			p.SKU,
			money(p.Price),
			p.Stock,
			p.Status,
			len(p.Images),
			when(p.CreatedAt),
		)
	}
	_, _ = fmt.Fprintln(pp.out(), tbl)
	pp.Pager(page.Page, page.TotalPages, page.Total, "product", "products")
}

// Users renders user profiles.
func (pp *PrettyPrint) Users(users []record.Profile) {
	if len(users) == 0 {
		pp.none()
		return
	}
	tbl := pp.table("Name", "Email", "Admin", "Joined")
	for _, u := range users {
		admin := color.New(color.Faint).Sprint("no")
		if u.IsAdmin() {
			admin = color.New(color.FgGreen).Sprint("yes")
		}
		pp.row(tbl, u.UID, u.Name, u.Email, admin, when(u.Created))
	}
	_, _ = fmt.Fprintln(pp.out(), tbl)
}

// Dashboard renders the counter tiles.
func (pp *PrettyPrint) Dashboard(c dashboard.Counts) {
	labels := map[dashboard.Counter]string{
		dashboard.TotalUsers:    "Total users",
		dashboard.AdminUsers:    "Verified admins",
		dashboard.TotalProducts: "Products",
		dashboard.SuccessOrders: "Successful orders",
		dashboard.FailedOrders:  "Failed orders",
		dashboard.DiscountCodes: "Discount codes",
		dashboard.MobileQueries: "App queries",
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	for _, counter := range dashboard.Counters() {
		value := strconv.Itoa(c.Get(counter))
		if c.Loading {
			value = color.New(color.Faint).Sprint("…")
		}
		tbl.AddRow(color.New(color.Bold).Sprint(value), labels[counter])
	}
	tbl.RightAlign(0)
	_, _ = fmt.Fprintln(pp.out(), tbl)
}

// Report renders an order report.
func (pp *PrettyPrint) Report(r app.ReportResult) {
	pp.Title(fmt.Sprintf("Orders %s to %s", r.Since.Format(timeLayout), r.Until.Format(timeLayout)))
	if r.Total == 0 {
		pp.none()
	}
	for _, section := range r.Sections {
		pp.TitleWithCount(capitalize(string(section.Status)), len(section.Orders), "order", "orders")
		tbl := pp.table("Order No", "Name", "Total", "Date & Time")
		for _, o := range section.Orders {
			pp.row(tbl, o.ID, o.Number(), o.Customer.Name, money(o.Total), when(o.CreatedAt))
		}
		_, _ = fmt.Fprintln(pp.out(), tbl)
		pp.NewLine()
	}
	faint := color.New(color.Faint)
	_, _ = faint.Fprintf(pp.out(), "%d orders, %s revenue, %d failed checkouts\n", r.Total, money(r.Revenue), r.Failed)
}

// Pager prints the page footer.
func (pp *PrettyPrint) Pager(page, pages, total int, one, many string) {
	noun := many
	if total == 1 {
		noun = one
	}
	if pages == 0 {
		pages = 1
	}
	faint := color.New(color.Faint)
	_, _ = faint.Fprintf(pp.out(), "Page %d of %d · %d %s\n", page, pages, total, noun)
}

// Notice prints a notification line.
func (pp *PrettyPrint) Notice(n notice.Notice) {
	c := color.New(color.FgCyan)
	switch n.Level {
	case notice.Success:
		c = color.New(color.FgGreen)
	case notice.Warning:
		c = color.New(color.FgYellow)
	case notice.Error:
		c = color.New(color.FgRed)
	}
	_, _ = c.Fprint(pp.out(), n.Title)
	if n.Text != "" {
		_, _ = fmt.Fprintf(pp.out(), ": %s", n.Text)
	}
	_, _ = fmt.Fprintln(pp.out())
}

// Status colors a status by its meaning.
func Status(s record.Status) string {
	switch s {
	case record.StatusDelivered, record.StatusReplied:
		return color.New(color.FgGreen).Sprint(s)
	case record.StatusCancelled:
		return color.New(color.FgRed).Sprint(s)
	case record.StatusProcessing, record.StatusPending:
		return color.New(color.FgYellow).Sprint(s)
	}
	return string(s)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func when(ts record.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(timeLayout)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
