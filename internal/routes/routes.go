package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"healthcare-scheduler/internal/config"
	"healthcare-scheduler/internal/handlers"
	"healthcare-scheduler/internal/middleware"
	"healthcare-scheduler/internal/models"
)

// Dependencies are the long-lived services the routes are built on.
type Dependencies struct {
	DB          *gorm.DB
	Redis       *redis.Client // optional
	Config      *config.Config
	Scheduler   handlers.AppointmentScheduler
	Mailer      handlers.PasswordResetSender
	RateLimiter *middleware.RateLimiter
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(deps.DB, cfg, deps.Mailer)
	userHandler := handlers.NewUserHandler(deps.DB)
	patientHandler := handlers.NewPatientHandler(deps.DB, cfg, deps.Mailer)
	appointmentHandler := handlers.NewAppointmentHandler(deps.Scheduler)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, cfg.Environment)

	limited := middleware.RateLimit(deps.RateLimiter)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth", limited)
		{
			authRoutes.POST("/signup", authHandler.Signup)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/reset-password", authHandler.RequestPasswordReset)
			authRoutes.POST("/reset-password/confirm", authHandler.ConfirmPasswordReset)
		}
		public.POST("/patients/login", limited, authHandler.Login)
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		private.GET("/doctors", userHandler.GetDoctors)

		// Admin-only account management
		userRoutes := private.Group("/users")
		userRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
		{
			userRoutes.POST("", userHandler.CreateUser)
			userRoutes.GET("", userHandler.GetUsers)
			userRoutes.GET("/:id", userHandler.GetUserByID)
			userRoutes.PUT("/:id", userHandler.UpdateUser)
			userRoutes.DELETE("/:id", userHandler.DeleteUser)
		}

		// Doctors manage the patients assigned to them
		patientRoutes := private.Group("/patients")
		patientRoutes.Use(middleware.RoleAuthMiddleware(models.RoleDoctor))
		{
			patientRoutes.POST("", patientHandler.CreatePatient)
			patientRoutes.GET("", patientHandler.GetPatients)
			patientRoutes.GET("/:id", patientHandler.GetPatient)
			patientRoutes.PUT("/:id", patientHandler.UpdatePatient)
			patientRoutes.DELETE("/:id", patientHandler.DeletePatient)
		}

		appointmentRoutes := private.Group("/appointments")
		{
			// Role-scoped workflow
			appointmentRoutes.GET("/doctor", middleware.RoleAuthMiddleware(models.RoleDoctor), appointmentHandler.GetDoctorAppointments)
			appointmentRoutes.GET("/patient", middleware.RoleAuthMiddleware(models.RolePatient), appointmentHandler.GetPatientAppointments)
			appointmentRoutes.POST("/book", middleware.RoleAuthMiddleware(models.RolePatient), appointmentHandler.BookAppointment)
			appointmentRoutes.PATCH("/:id/status", middleware.RoleAuthMiddleware(models.RoleDoctor), appointmentHandler.UpdateAppointmentStatus)

			// Administrative surface, any authenticated caller
			appointmentRoutes.GET("", appointmentHandler.GetAppointments)
			appointmentRoutes.POST("", appointmentHandler.AddAppointment)
			appointmentRoutes.PATCH("/:id", appointmentHandler.UpdateAppointment)
			appointmentRoutes.DELETE("/:id", appointmentHandler.DeleteAppointment)
		}
	}

	router.GET("/health", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
}
