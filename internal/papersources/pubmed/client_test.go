package pubmed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/papersources"
)

const esearchResponse = `<?xml version="1.0"?>
<eSearchResult>
  <Count>57</Count>
  <RetMax>2</RetMax>
  <RetStart>0</RetStart>
  <IdList>
    <Id>11111111</Id>
    <Id>22222222</Id>
  </IdList>
</eSearchResult>`

const esearchEmptyResponse = `<?xml version="1.0"?>
<eSearchResult>
  <Count>0</Count>
  <IdList></IdList>
  <ErrorList>
    <PhraseNotFound>zxqv unfindable</PhraseNotFound>
  </ErrorList>
</eSearchResult>`

const efetchResponse = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>11111111</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate><Year>2022</Year><Month>Mar</Month><Day>4</Day></PubDate>
          </JournalIssue>
          <Title>Journal of Software Reliability</Title>
        </Journal>
        <ArticleTitle>Fault Injection Outcomes in Microservices</ArticleTitle>
        <ELocationID EIdType="doi" ValidYN="Y">10.1000/jsr.2022.001</ELocationID>
        <Abstract>
          <AbstractText Label="BACKGROUND">Faults happen.</AbstractText>
          <AbstractText Label="RESULTS">Resilience improved.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author>
            <LastName>Garcia</LastName>
            <ForeName>Maria</ForeName>
            <AffiliationInfo><Affiliation>University of Madrid</Affiliation></AffiliationInfo>
          </Author>
          <Author><CollectiveName>Resilience Study Group</CollectiveName></Author>
          <Author ValidYN="N"><LastName>Removed</LastName></Author>
        </AuthorList>
      </Article>
      <KeywordList><Keyword>fault injection</Keyword></KeywordList>
      <MeshHeadingList>
        <MeshHeading><DescriptorName UI="D012345">Software Reliability</DescriptorName></MeshHeading>
      </MeshHeadingList>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">11111111</ArticleId>
        <ArticleId IdType="doi">10.1000/jsr.2022.001</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL, RateLimit: 1000, BurstSize: 1000, Enabled: true})
}

func TestClient_Search(t *testing.T) {
	var searchQuery, minDate, maxDate string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			searchQuery = r.URL.Query().Get("term")
			minDate = r.URL.Query().Get("mindate")
			maxDate = r.URL.Query().Get("maxdate")
			_, _ = w.Write([]byte(esearchResponse))
		case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
			assert.Equal(t, "11111111,22222222", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(efetchResponse))
		default:
			http.NotFound(w, r)
		}
	})

	result, err := client.Search(context.Background(), papersources.SearchParams{
		Query:      "fault injection",
		YearFrom:   2020,
		YearTo:     2023,
		MaxResults: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "fault injection", searchQuery)
	assert.Equal(t, "2020", minDate)
	assert.Equal(t, "2023", maxDate)

	assert.Equal(t, 57, result.TotalResults)
	assert.True(t, result.HasMore)
	assert.Equal(t, domain.SourceTypePubMed, result.Source)

	require.Len(t, result.Papers, 1)
	paper := result.Papers[0]
	assert.Equal(t, "Fault Injection Outcomes in Microservices", paper.Title)
	assert.Equal(t, "10.1000/jsr.2022.001", paper.DOI)
	assert.Equal(t, "doi:10.1000/jsr.2022.001", paper.CanonicalID)
	assert.Equal(t, "Journal of Software Reliability", paper.Journal)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/11111111/", paper.URL)
	assert.Equal(t, 2022, paper.Year)
	assert.Equal(t, "BACKGROUND: Faults happen. RESULTS: Resilience improved.", paper.Abstract)
	assert.Equal(t, []string{"fault injection", "Software Reliability"}, paper.Keywords)

	// The ValidYN="N" author is dropped, the collective author kept.
	require.Len(t, paper.Authors, 2)
	assert.Equal(t, "Maria Garcia", paper.Authors[0].Name)
	assert.Equal(t, "University of Madrid", paper.Authors[0].Affiliation)
	assert.Equal(t, "Resilience Study Group", paper.Authors[1].Name)
}

func TestClient_Search_PhraseNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(esearchEmptyResponse))
	})

	result, err := client.Search(context.Background(), papersources.SearchParams{Query: "zxqv unfindable"})
	require.NoError(t, err)
	assert.Empty(t, result.Papers)
	assert.False(t, result.HasMore)
}

func TestClient_Search_Disabled(t *testing.T) {
	client := New(Config{Enabled: false})
	_, err := client.Search(context.Background(), papersources.SearchParams{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestClient_Search_APIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := client.Search(context.Background(), papersources.SearchParams{Query: "x"})
	require.Error(t, err)

	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "PubMed", apiErr.Source)
}

func TestExtractPublicationDate_MedlineDate(t *testing.T) {
	article := Article{}
	article.Journal.JournalIssue.PubDate.MedlineDate = "2020 Jan-Feb"

	date, year := extractPublicationDate(article)
	require.NotNil(t, date)
	assert.Equal(t, 2020, year)
}

func TestParseMonth(t *testing.T) {
	assert.Equal(t, "March", parseMonth("Mar").String())
	assert.Equal(t, "March", parseMonth("3").String())
	assert.Equal(t, "January", parseMonth("").String())
	assert.Equal(t, "January", parseMonth("nonsense").String())
}

func TestClient_Properties(t *testing.T) {
	client := New(Config{Enabled: true})
	assert.Equal(t, domain.SourceTypePubMed, client.SourceType())
	assert.Equal(t, "PubMed", client.Name())
	assert.True(t, client.IsEnabled())
}
