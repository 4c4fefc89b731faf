package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/courtflow/pickleball-system/handlers"
	"github.com/courtflow/pickleball-system/middleware"
	"github.com/courtflow/pickleball-system/models"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	matchHandler *handlers.MatchHandler,
	standingsHandler *handlers.StandingsHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Get("/swagger/*", httpSwagger.WrapHandler)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	router.Route("/matches", func(r chi.Router) {
		// Публичный просмотр матча (с ленивой эскалацией при чтении)
		r.Get("/{matchID}", matchHandler.GetMatchDetail)

		// Жизненный цикл счёта — только для аутентифицированных
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/{matchID}/score", matchHandler.SubmitScore)
			r.Post("/{matchID}/confirm", matchHandler.ConfirmScore)
			r.Post("/{matchID}/dispute", matchHandler.DisputeScore)

			// Разрешение споров — только организаторы
			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(string(models.RoleOrganizer), string(models.RoleAdmin)))
				r.Post("/{matchID}/resolve", matchHandler.ResolveDispute)
			})
		})
	})

	router.Route("/divisions/{divisionID}", func(r chi.Router) {
		r.Get("/matches", matchHandler.ListDivisionMatches)
		r.Get("/standings", standingsHandler.GetDivisionStandings)
	})

	router.Get("/ws/competitions/{competitionID}", webSocketHandler.ServeWs)
}
