package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	clientcart "github.com/Skotchmaster/storefront/client/cart"
	"github.com/Skotchmaster/storefront/client/credstore"
	"github.com/Skotchmaster/storefront/client/services"
	"github.com/Skotchmaster/storefront/client/session"
	"github.com/Skotchmaster/storefront/internal/logging"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: shopctl <command> [args]

commands:
  login <username> <password>
  logout
  me
  products [page]
  categories
  category <category-id> [page]
  search <query>
  cart
  cart-add <product-id> [quantity]
  cart-update <item-id> <quantity>
  cart-remove <item-id>
  checkout
  orders`)
	os.Exit(2)
}

func main() {
	if err := godotenv.Load(".env"); err == nil {
		log.Printf("loaded .env")
	}
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	baseURL := os.Getenv("STOREFRONT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	storePath := os.Getenv("STOREFRONT_CREDENTIALS")
	if storePath == "" {
		home, _ := os.UserHomeDir()
		storePath = filepath.Join(home, ".storefront", "credentials.db")
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o700); err != nil {
		log.Fatalf("credential dir: %v", err)
	}

	store, err := credstore.Open(storePath)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(os.Getenv("LOG_LEVEL"))
	client, err := session.New(baseURL, store, session.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	ended, stopEnded := client.OnSessionEnd()
	defer stopEnded()
	go func() {
		<-ended
		fmt.Fprintln(os.Stderr, "session expired, please log in again")
	}()

	auth := services.NewAuth(client, store)
	cartSvc := services.NewCart(client)
	dashboard := services.NewDashboard(client)
	products := services.NewProducts(client)
	manager := clientcart.NewManager(cartSvc, clientcart.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "login":
		if len(args) != 3 {
			usage()
		}
		user, err := auth.Login(ctx, args[1], args[2])
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("logged in as %s (%s)\n", user.Username, user.Email)

	case "logout":
		if err := auth.Logout(ctx); err != nil {
			log.Fatal(err)
		}
		manager.Clear()
		fmt.Println("logged out")

	case "me":
		user, err := auth.Me(ctx)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s <%s> role=%s\n", user.Username, user.Email, user.Role)

	case "products":
		page := 1
		if len(args) > 1 {
			page = atoi(args[1])
		}
		result, err := products.List(ctx, page, 10)
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range result.Items {
			fmt.Printf("%4d  %-30s %8s  stock=%d\n", p.ID, p.Name, p.Price.StringFixed(2), p.StockQuantity)
		}
		fmt.Printf("page %d of %d (%d products)\n", result.Meta.Page, result.Meta.TotalPages, result.Meta.Total)

	case "categories":
		categories, err := products.Categories(ctx)
		if err != nil {
			log.Fatal(err)
		}
		for _, cat := range categories {
			fmt.Printf("%4d  %-30s %d products\n", cat.ID, cat.Name, cat.ProductCount)
		}

	case "category":
		if len(args) < 2 {
			usage()
		}
		page := 1
		if len(args) > 2 {
			page = atoi(args[2])
		}
		result, err := products.ByCategory(ctx, uint(atoi(args[1])), page, 10)
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range result.Items {
			fmt.Printf("%4d  %-30s %8s  stock=%d\n", p.ID, p.Name, p.Price.StringFixed(2), p.StockQuantity)
		}
		fmt.Printf("page %d of %d (%d products)\n", result.Meta.Page, result.Meta.TotalPages, result.Meta.Total)

	case "search":
		if len(args) != 2 {
			usage()
		}
		found, total, err := products.Search(ctx, args[1], 1, 10)
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range found {
			fmt.Printf("%4d  %-30s %8s\n", p.ID, p.Name, p.Price.StringFixed(2))
		}
		fmt.Printf("%d results\n", total)

	case "cart":
		if err := manager.Refresh(ctx); err != nil {
			log.Fatal(err)
		}
		printCart(manager.Current())

	case "cart-add":
		if len(args) < 2 {
			usage()
		}
		qty := uint(1)
		if len(args) > 2 {
			qty = uint(atoi(args[2]))
		}
		if err := manager.Refresh(ctx); err != nil {
			log.Fatal(err)
		}
		if err := manager.AddItem(ctx, uint(atoi(args[1])), qty); err != nil {
			log.Fatal(err)
		}
		printCart(manager.Current())

	case "cart-update":
		if len(args) != 3 {
			usage()
		}
		if err := manager.Refresh(ctx); err != nil {
			log.Fatal(err)
		}
		if err := manager.UpdateQuantity(ctx, uint(atoi(args[1])), uint(atoi(args[2]))); err != nil {
			log.Fatal(err)
		}
		printCart(manager.Current())

	case "cart-remove":
		if len(args) != 2 {
			usage()
		}
		if err := manager.Refresh(ctx); err != nil {
			log.Fatal(err)
		}
		if err := manager.RemoveItem(ctx, uint(atoi(args[1]))); err != nil {
			log.Fatal(err)
		}
		printCart(manager.Current())

	case "checkout":
		order, err := cartSvc.Checkout(ctx)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("order #%d created, total %s\n", order.ID, order.Total.StringFixed(2))

	case "orders":
		orders, err := dashboard.Orders(ctx)
		if err != nil {
			log.Fatal(err)
		}
		for _, o := range orders {
			fmt.Printf("#%-5d %-10s %10s  %s\n", o.ID, o.Status, o.Total.StringFixed(2), time.Unix(o.CreatedAt, 0).Format(time.DateOnly))
		}

	default:
		usage()
	}
}

func printCart(cart *services.Cart) {
	for _, it := range cart.Items {
		fmt.Printf("%4d  %-30s x%-3d %8s = %8s\n",
			it.ID, it.Product.Name, it.Quantity, it.UnitPrice.StringFixed(2), it.Subtotal.StringFixed(2))
	}
	fmt.Printf("items:    %d\n", cart.ItemCount)
	fmt.Printf("subtotal: %s\n", cart.Subtotal.StringFixed(2))
	fmt.Printf("tax:      %s\n", cart.TaxAmount.StringFixed(2))
	fmt.Printf("total:    %s\n", cart.Total.StringFixed(2))
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid number %q", s)
	}
	return v
}
