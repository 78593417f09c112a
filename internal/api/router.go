package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/example/bookshop/internal/api/middleware"
	"github.com/example/bookshop/internal/auth"
)

// RouterConfig holds the handlers and the token service of the API
type RouterConfig struct {
	Handlers         *Handlers
	AuthHandlers     *AuthHandlers
	CategoryHandlers *CategoryHandlers
	JWTService       *auth.JWTService
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	handlers := cfg.Handlers
	requireAuth := middleware.RequireAuth(cfg.JWTService)
	optionalAuth := middleware.OptionalAuth(cfg.JWTService)

	// Books
	mux.HandleFunc("/books", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.SearchBooks(w, r)
		case http.MethodPost:
			requireAuth(http.HandlerFunc(handlers.ListBook)).ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/books/featured", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.FeaturedBooks(w, r)
	})

	mux.Handle("/books/mine", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.MyBooks(w, r)
	})))

	mux.HandleFunc("/books/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/reviews") && r.Method == http.MethodPost:
			requireAuth(http.HandlerFunc(handlers.ReviewBook)).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/return") && r.Method == http.MethodPost:
			requireAuth(http.HandlerFunc(handlers.ReturnBook)).ServeHTTP(w, r)
		case r.Method == http.MethodGet:
			handlers.GetBook(w, r)
		case r.Method == http.MethodPatch || r.Method == http.MethodPut:
			requireAuth(http.HandlerFunc(handlers.EditBook)).ServeHTTP(w, r)
		case r.Method == http.MethodDelete:
			requireAuth(http.HandlerFunc(handlers.DeleteBook)).ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Categories and publishers
	if cfg.CategoryHandlers != nil {
		mux.HandleFunc("/categories", methodGet(cfg.CategoryHandlers.ListCategories))
		mux.HandleFunc("/publishers", methodGet(cfg.CategoryHandlers.ListPublishers))
	}

	// Cart
	mux.Handle("/cart", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetCart(w, r)
		case http.MethodDelete:
			handlers.ClearCart(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/cart/items", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.AddToCart(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/cart/items/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			handlers.UpdateCartItem(w, r)
		case http.MethodDelete:
			handlers.RemoveFromCart(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/cart/promo", requireAuth(methodPost(handlers.ApplyPromo)))
	mux.Handle("/cart/checkout", requireAuth(methodPost(handlers.Checkout)))

	// Auth
	if a := cfg.AuthHandlers; a != nil {
		mux.HandleFunc("/auth/register", methodPost(a.Register))
		mux.HandleFunc("/auth/login", methodPost(a.Login))
		mux.HandleFunc(refreshPath, methodPost(a.Refresh))
		mux.Handle("/auth/logout", optionalAuth(methodPost(a.Logout)))
		mux.Handle("/auth/password", requireAuth(methodPost(a.ChangePassword)))
		mux.Handle("/auth/me", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				a.Me(w, r)
			case http.MethodPatch:
				a.UpdateProfile(w, r)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
		})))
	}

	return withLogging(mux)
}

func methodGet(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}

func methodPost(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[API] %s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Microsecond))
	})
}
