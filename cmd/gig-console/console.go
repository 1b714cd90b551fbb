package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ms-gigs/internal/analytics"
	"ms-gigs/internal/api"
	"ms-gigs/internal/booking"
	"ms-gigs/internal/cancellation"
	"ms-gigs/internal/gigs"
	"ms-gigs/internal/store"
)

const (
	columnWidth = 20
	timeLayout  = "2006-01-02 15:04"
)

const menu = `Gig system
1) Gig lineup
2) Provision a gig
3) Book a ticket
4) Cancel an act
5) Tickets to sell for break-even
6) Headline act ticket sales
7) Regular customers
8) Economically feasible gigs
q) Quit`

// reports maps menu options to projection names.
var reports = map[string]string{
	"5": analytics.ReportBreakEven,
	"6": analytics.ReportHeadlineSales,
	"7": analytics.ReportRegularCustomers,
	"8": analytics.ReportFeasibleGigs,
}

type Console struct {
	Gigs         api.Provisioner
	Bookings     api.Booker
	Cancellation api.Canceller
	Projections  api.Projections

	in  *bufio.Scanner
	out io.Writer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewScanner(in), out: out}
}

// Run reads one option per cycle until q or end of input.
func (c *Console) Run(ctx context.Context) {
	for {
		fmt.Fprintln(c.out, menu)
		option, ok := c.readLine("Choose an option: ")
		if !ok || option == "q" {
			return
		}
		if err := c.dispatch(ctx, option); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Console) dispatch(ctx context.Context, option string) error {
	switch option {
	case "1":
		return c.lineup(ctx)
	case "2":
		return c.provision(ctx)
	case "3":
		return c.book(ctx)
	case "4":
		return c.cancelAct(ctx)
	}
	if name, ok := reports[option]; ok {
		rs, err := c.Projections.Report(ctx, name)
		if err != nil {
			return err
		}
		PrintTable(c.out, rs)
		return nil
	}
	fmt.Fprintf(c.out, "Unknown option %q\n", option)
	return nil
}

func (c *Console) lineup(ctx context.Context) error {
	gigID, err := c.readInt("Gig ID: ")
	if err != nil {
		return err
	}
	rs, err := c.Projections.Lineup(ctx, gigID)
	if err != nil {
		return err
	}
	PrintTable(c.out, rs)
	return nil
}

func (c *Console) provision(ctx context.Context) error {
	var req gigs.Request
	var err error

	req.VenueName, _ = c.readLine("Venue name: ")
	req.Title, _ = c.readLine("Gig title: ")
	if req.Start, err = c.readTime("Start (" + timeLayout + "): "); err != nil {
		return err
	}
	price, err := c.readInt("Adult ticket price: ")
	if err != nil {
		return err
	}
	req.AdultTicketPrice = int(price)

	fmt.Fprintln(c.out, "Performances as actID,fee,"+timeLayout+",minutes; blank line to finish")
	for {
		line, ok := c.readLine("> ")
		if !ok || line == "" {
			break
		}
		p, err := parsePerformance(line)
		if err != nil {
			return err
		}
		req.Performances = append(req.Performances, p)
	}

	gigID, err := c.Gigs.Provision(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Gig %d provisioned\n", gigID)
	return nil
}

func (c *Console) book(ctx context.Context) error {
	gigID, err := c.readInt("Gig ID: ")
	if err != nil {
		return err
	}
	req := booking.Request{GigID: gigID}
	req.CustomerName, _ = c.readLine("Customer name: ")
	req.CustomerEmail, _ = c.readLine("Customer email: ")
	req.PriceType, _ = c.readLine("Price type: ")

	res, err := c.Bookings.BookTicket(ctx, req)
	if err != nil {
		return err
	}
	if !res.Booked {
		fmt.Fprintf(c.out, "Booking refused: %s\n", res.Reason)
		return nil
	}
	fmt.Fprintf(c.out, "Ticket %d booked\n", res.TicketID)
	return nil
}

func (c *Console) cancelAct(ctx context.Context) error {
	gigID, err := c.readInt("Gig ID: ")
	if err != nil {
		return err
	}
	actName, _ := c.readLine("Act name: ")

	outcome, err := c.Cancellation.CancelAct(ctx, gigID, actName)
	if err != nil {
		return err
	}
	switch outcome.Status {
	case cancellation.StatusGigCancelled:
		fmt.Fprintf(c.out, "Gig %d cancelled, customers to notify:\n", gigID)
		for _, email := range outcome.AffectedEmails {
			fmt.Fprintln(c.out, email)
		}
	default:
		fmt.Fprintln(c.out, "Remaining lineup:")
		rows := make([][]string, 0, len(outcome.Lineup))
		for _, e := range outcome.Lineup {
			rows = append(rows, []string{e.ActName, e.OnTime, e.FinishTime})
		}
		writeRows(c.out, rows)
	}
	return nil
}

func (c *Console) readLine(prompt string) (string, bool) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

func (c *Console) readInt(prompt string) (int64, error) {
	line, _ := c.readLine(prompt)
	n, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", line)
	}
	return n, nil
}

func (c *Console) readTime(prompt string) (time.Time, error) {
	line, _ := c.readLine(prompt)
	t, err := time.Parse(timeLayout, line)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a time in %s form", line, timeLayout)
	}
	return t, nil
}

func parsePerformance(line string) (gigs.Performance, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return gigs.Performance{}, fmt.Errorf("performance %q needs four fields", line)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	actID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return gigs.Performance{}, fmt.Errorf("act id %q is not a number", parts[0])
	}
	fee, err := strconv.Atoi(parts[1])
	if err != nil {
		return gigs.Performance{}, fmt.Errorf("fee %q is not a number", parts[1])
	}
	onTime, err := time.Parse(timeLayout, parts[2])
	if err != nil {
		return gigs.Performance{}, fmt.Errorf("on time %q is not in %s form", parts[2], timeLayout)
	}
	duration, err := strconv.Atoi(parts[3])
	if err != nil {
		return gigs.Performance{}, fmt.Errorf("duration %q is not a number", parts[3])
	}
	return gigs.Performance{ActID: actID, Fee: fee, OnTime: onTime, Duration: duration}, nil
}

// PrintTable writes the rows right-aligned in fixed-width, comma-separated
// columns. NULL cells print as null.
func PrintTable(w io.Writer, rs store.RowSet) {
	writeRows(w, rs.Strings("null"))
}

func writeRows(w io.Writer, rows [][]string) {
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprintf("%*s", columnWidth, cell)
		}
		fmt.Fprintln(w, strings.Join(cells, ","))
	}
}
