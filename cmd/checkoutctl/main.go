// Command checkoutctl inspects carts and orders and moves orders through
// their lifecycle from a terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/imrishuroy/go-cart-checkout/internal/app"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
	"github.com/imrishuroy/go-cart-checkout/internal/config"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
	"github.com/imrishuroy/go-cart-checkout/internal/pricing"
)

const usage = `usage: checkoutctl <command> [flags]

commands:
  quote      -user U              price the current cart of U
  orders     -user U              list the orders of U
  order      -id ID               show one order with its lines
  combos                          list active combos
  set-status -id ID -status S     move an order to status S
`

// Engine is what the commands need from the checkout engine.
type Engine interface {
	Quote(ctx context.Context, userID string) (pricing.Quote, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
	AdminGetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	UpdateStatus(ctx context.Context, orderID, value string) (*orders.Order, error)
}

// Combos lists active combos.
type Combos interface {
	ListActiveCombos(ctx context.Context) ([]catalogue.Combo, error)
}

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to wire app: %v", err)
	}
	defer a.Close()

	if err := run(ctx, os.Args[1:], a.Engine, a.Catalogue, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		log.Printf("checkoutctl: %v", err)
		a.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, e Engine, combos Combos, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "user id")
	id := fs.String("id", "", "order id")
	status := fs.String("status", "", "target order status")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	switch args[0] {
	case "quote":
		if *user == "" {
			return fmt.Errorf("%w: -user is required", errUsage)
		}
		q, err := e.Quote(ctx, *user)
		if err != nil {
			return err
		}
		return renderQuote(out, q)
	case "orders":
		if *user == "" {
			return fmt.Errorf("%w: -user is required", errUsage)
		}
		list, err := e.ListOrders(ctx, *user)
		if err != nil {
			return err
		}
		return renderOrders(out, list)
	case "order":
		if *id == "" {
			return fmt.Errorf("%w: -id is required", errUsage)
		}
		o, err := e.AdminGetOrder(ctx, *id)
		if err != nil {
			return err
		}
		return renderOrder(out, *o)
	case "combos":
		list, err := combos.ListActiveCombos(ctx)
		if err != nil {
			return err
		}
		return renderCombos(out, list)
	case "set-status":
		if *id == "" || *status == "" {
			return fmt.Errorf("%w: -id and -status are required", errUsage)
		}
		o, err := e.UpdateStatus(ctx, *id, *status)
		if err != nil {
			return err
		}
		return renderOrders(out, []orders.Order{*o})
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func renderQuote(out io.Writer, q pricing.Quote) error {
	table := tablewriter.NewWriter(out)
	table.Header("Product", "Name", "Unit price", "Qty", "Line total", "Flash sale")
	rows := make([][]string, 0, len(q.Lines)+len(q.Combos)+3)
	for _, l := range q.Lines {
		rows = append(rows, []string{
			strconv.FormatInt(l.ProductID, 10), l.ProductName, l.UnitPrice.String(),
			strconv.Itoa(l.Quantity), l.LineTotal.String(), strconv.FormatBool(l.FlashSale),
		})
	}
	for _, c := range q.Combos {
		rows = append(rows, []string{"combo " + strconv.FormatInt(c.ComboID, 10), c.Name, "", "", "-" + c.Discount.String(), ""})
	}
	rows = append(rows,
		[]string{"", "subtotal", "", "", q.Subtotal.String(), ""},
		[]string{"", "discount", "", "", q.Discount.String(), ""},
		[]string{"", "total", "", "", q.Total.String(), ""},
	)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func renderOrders(out io.Writer, list []orders.Order) error {
	table := tablewriter.NewWriter(out)
	table.Header("Order", "User", "Status", "Payment", "Total", "Created")
	rows := make([][]string, 0, len(list))
	for _, o := range list {
		rows = append(rows, []string{
			o.ID, o.UserID, string(o.Status),
			string(o.PaymentMethod) + "/" + string(o.PaymentStatus),
			o.Total.String(), o.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func renderOrder(out io.Writer, o orders.Order) error {
	if err := renderOrders(out, []orders.Order{o}); err != nil {
		return err
	}
	table := tablewriter.NewWriter(out)
	table.Header("Product", "Name", "Unit price", "Qty", "Line total")
	rows := make([][]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		rows = append(rows, []string{
			strconv.FormatInt(l.ProductID, 10), l.ProductName, l.UnitPrice.String(),
			strconv.Itoa(l.Quantity), l.LineTotal.String(),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func renderCombos(out io.Writer, list []catalogue.Combo) error {
	table := tablewriter.NewWriter(out)
	table.Header("Combo", "Name", "Requires", "Discount")
	rows := make([][]string, 0, len(list))
	for _, c := range list {
		req := ""
		for i, pid := range c.ProductIDs() {
			if i > 0 {
				req += ", "
			}
			req += fmt.Sprintf("%dx#%d", c.Requirements()[pid], pid)
		}
		rows = append(rows, []string{strconv.FormatInt(c.ID, 10), c.Name, req, c.Discount.String()})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
