package service

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// StudentService handles student business logic.
type StudentService struct {
	studentRepo *repository.StudentRepository
	bcryptCost  int
}

// NewStudentService creates a new StudentService.
func NewStudentService(studentRepo *repository.StudentRepository, bcryptCost int) *StudentService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &StudentService{studentRepo: studentRepo, bcryptCost: bcryptCost}
}

// GetByNISN retrieves a student by their NISN.
func (s *StudentService) GetByNISN(ctx context.Context, nisn string) (*model.Student, error) {
	return s.studentRepo.GetByNISN(ctx, nisn)
}

// GetByID retrieves a student by ID.
func (s *StudentService) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, id)
}

// Create inserts a new student. PasswordHash holds the plaintext password on
// input and is replaced with its hash.
func (s *StudentService) Create(ctx context.Context, student *model.Student) error {
	if err := s.hash(student); err != nil {
		return err
	}
	return s.studentRepo.Create(ctx, student)
}

// BulkCreate hashes and inserts many students in one COPY.
func (s *StudentService) BulkCreate(ctx context.Context, students []model.Student) (int64, error) {
	for i := range students {
		if err := s.hash(&students[i]); err != nil {
			return 0, fmt.Errorf("student %s: %w", students[i].NISN, err)
		}
	}
	return s.studentRepo.BulkCreate(ctx, students)
}

func (s *StudentService) hash(student *model.Student) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(student.PasswordHash), s.bcryptCost)
	if err != nil {
		return err
	}
	student.PasswordHash = string(hashed)
	return nil
}
