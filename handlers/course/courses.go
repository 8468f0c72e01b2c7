package course

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"github.com/vedshala/lms-api/utils/middleware"
	"github.com/vedshala/lms-api/utils/response"
	"github.com/vedshala/lms-api/utils/validation"
	"gorm.io/gorm"
)

// CourseHandler handles course catalog requests
type CourseHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewCourseHandler creates a new course handler
func NewCourseHandler(db *gorm.DB) *CourseHandler {
	return &CourseHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// CreateCourseRequest represents the request body for creating a course
type CreateCourseRequest struct {
	Name          string `json:"name" validate:"required,min=3,max=255"`
	Code          string `json:"code" validate:"required,min=2,max=50"`
	Description   string `json:"description" validate:"omitempty,max=1000"`
	Price         string `json:"price" validate:"required"`
	DurationWeeks int    `json:"duration_weeks" validate:"omitempty,min=1,max=104"`
	Language      string `json:"language" validate:"omitempty,max=30"`
}

// UpdateCourseRequest represents the request body for updating a course
type UpdateCourseRequest struct {
	Name          string  `json:"name" validate:"omitempty,min=3,max=255"`
	Code          string  `json:"code" validate:"omitempty,min=2,max=50"`
	Description   string  `json:"description" validate:"omitempty,max=1000"`
	Price         *string `json:"price" validate:"omitempty"`
	DurationWeeks *int    `json:"duration_weeks" validate:"omitempty,min=1,max=104"`
	Language      string  `json:"language" validate:"omitempty,max=30"`
	Active        *bool   `json:"active" validate:"omitempty"`
}

// ListCourses handles GET /api/v1/courses
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	// Parse query parameters
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	search := c.Query("search", "")

	// Build query; the public catalog only shows active courses
	query := h.db.Model(&model.Course{}).Where("active = ?", true)

	// Apply filters
	if search != "" {
		query = query.Where("name ILIKE ? OR code ILIKE ? OR description ILIKE ?",
			"%"+search+"%", "%"+search+"%", "%"+search+"%")
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count courses")
	}

	// Calculate pagination
	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	var courses []model.Course
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&courses).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	return response.Paginated(c, courses, pagination)
}

// GetCourse handles GET /api/v1/courses/:id
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	id := c.Params("id")

	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	return response.Success(c, course)
}

// CreateCourse handles POST /api/v1/courses
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	// Get user from context
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	// Parse request body
	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Sanitize inputs
	req.Name = validation.SanitizeString(req.Name)
	req.Code = validation.SanitizeString(req.Code)
	req.Description = validation.SanitizeString(req.Description)

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return response.BadRequest(c, "Price must be a non-negative decimal number")
	}

	// Check if course with same code already exists
	var existingCourse model.Course
	if err := h.db.Where("code = ?", req.Code).First(&existingCourse).Error; err == nil {
		return response.Conflict(c, "Course with this code already exists")
	}

	// Create course
	course := model.Course{
		Name:          req.Name,
		Code:          req.Code,
		Description:   req.Description,
		Price:         price,
		DurationWeeks: req.DurationWeeks,
		Language:      req.Language,
		Active:        true,
	}

	if err := h.db.Create(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to create course")
	}

	return response.Created(c, course)
}

// UpdateCourse handles PUT /api/v1/courses/:id
func (h *CourseHandler) UpdateCourse(c *fiber.Ctx) error {
	id := c.Params("id")

	// Get user from context
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	// Parse request body
	var req UpdateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Check if course exists
	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	// Update fields if provided
	if req.Name != "" {
		course.Name = validation.SanitizeString(req.Name)
	}

	if req.Code != "" {
		// Check if code is already used by another course
		var existingCourse model.Course
		if err := h.db.Where("code = ? AND id != ?", req.Code, id).First(&existingCourse).Error; err == nil {
			return response.Conflict(c, "Course with this code already exists")
		}
		course.Code = validation.SanitizeString(req.Code)
	}

	if req.Description != "" {
		course.Description = validation.SanitizeString(req.Description)
	}

	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil || price.IsNegative() {
			return response.BadRequest(c, "Price must be a non-negative decimal number")
		}
		// Price changes only affect future sales; accrued commissions
		// keep their snapshot of the sale amount
		course.Price = price
	}

	if req.DurationWeeks != nil {
		course.DurationWeeks = *req.DurationWeeks
	}

	if req.Language != "" {
		course.Language = req.Language
	}

	if req.Active != nil {
		course.Active = *req.Active
	}

	// Save changes
	if err := h.db.Save(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to update course")
	}

	return response.SuccessWithMessage(c, "Course updated successfully", course)
}

// DeleteCourse handles DELETE /api/v1/courses/:id
func (h *CourseHandler) DeleteCourse(c *fiber.Ctx) error {
	id := c.Params("id")

	// Get user from context
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	// Check if course exists
	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	// Courses with enrollments are deactivated instead of deleted so
	// enrolled students keep access
	var enrollmentCount int64
	if err := h.db.Model(&model.Enrollment{}).Where("course_id = ?", id).Count(&enrollmentCount).Error; err != nil {
		return response.InternalServerError(c, "Failed to check course dependencies")
	}

	if enrollmentCount > 0 {
		if err := h.db.Model(&course).Update("active", false).Error; err != nil {
			return response.InternalServerError(c, "Failed to deactivate course")
		}
		return response.SuccessWithMessage(c, "Course has enrollments and was deactivated instead", course)
	}

	// Delete course (soft delete)
	if err := h.db.Delete(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete course")
	}

	return response.SuccessWithMessage(c, "Course deleted successfully", nil)
}
